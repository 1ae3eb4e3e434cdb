// Package server exposes descriptions views of stored entities over HTTP.
//
// Views come from a schema directory (see package config). For every view,
// entity and subject the server keeps one mounted descriptions session; its
// request function reads the entity store and saved fields are written back
// with optimistic versioning and an audit entry.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /v1/views
//	GET    /v1/views/{view}/entities/{id}
//	POST   /v1/views/{view}/entities/{id}/reload
//	POST   /v1/views/{view}/entities/{id}/fields/{key}:{start|cancel|save|delete}
//	GET    /v1/views/{view}/entities/{id}/live      (websocket)
//	GET    /v1/entities
//	PUT    /v1/entities/{id}
//	GET    /v1/entities/{id}
//	DELETE /v1/entities/{id}
//	GET    /v1/entities/{id}/audit
//
// The subject is read from the X-User and X-Roles headers.
package server
