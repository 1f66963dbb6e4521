package api

// @title modelmap API
// @version v1
// @description Model-rename rules for an upstream AI gateway: rule editing, channel previews and pushes.

// @license.name MIT

// @host localhost:3000
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
