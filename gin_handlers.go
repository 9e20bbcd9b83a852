package realtime_sdk

/* @title           Realtime SDK API
@version         1.0
@description     Realtime SDK API documentation
@host            localhost:8080
@BasePath        /api/v1
@securityDefinitions.apikey BearerAuth
@in header
@name Authorization
*/

/* This file is now split into:
- handler_room.go
- handler_message.go
- handler_reminder.go
*/
