// Package api provides the tenancy control-plane REST API.
//
//	@title						Tenancy API
//	@version					1.0
//	@description				Tenant database provisioning and migration status
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package api
