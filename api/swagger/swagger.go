package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Grievance API",
        "description": "Campus grievance ticketing workflow",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Token issuance"},
        {"name": "Grievances", "description": "Grievance ticketing workflow"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grievances": {
            "post": {
                "tags": ["Grievances"],
                "summary": "Submit a grievance (student, faculty)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGrievanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Grievances"],
                "summary": "List grievances in scope (authority, admin)",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "priority", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grievances/my": {
            "get": {
                "tags": ["Grievances"],
                "summary": "List own submissions (student, faculty)",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grievances/export": {
            "get": {
                "tags": ["Grievances"],
                "summary": "Export the register as CSV or PDF (admin)",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/grievances/{id}": {
            "get": {
                "tags": ["Grievances"],
                "summary": "Get a grievance (policy-checked)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not visible to this user"},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Grievances"],
                "summary": "Delete a grievance (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Deleted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grievances/{id}/status": {
            "patch": {
                "tags": ["Grievances"],
                "summary": "Change status with remark (assigned authority, admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangeStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grievances/{id}/assign": {
            "patch": {
                "tags": ["Grievances"],
                "summary": "Assign or unassign (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Grievance": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string", "enum": ["Infrastructure", "Academic", "Hostel", "Other", "IT", "Mess"]},
                "priority": {"type": "string", "enum": ["Low", "Medium", "High", "Urgent"]},
                "location": {"type": "string"},
                "is_anonymous": {"type": "boolean"},
                "submitted_by": {"type": "string"},
                "assigned_to": {"type": "string"},
                "status": {"type": "string", "enum": ["Submitted", "Under Review", "In Progress", "Resolved", "Closed"]},
                "remarks": {"type": "array", "items": {"$ref": "#/definitions/Remark"}},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "Remark": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "grievance_id": {"type": "string"},
                "text": {"type": "string"},
                "added_by": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "CreateGrievanceRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "priority": {"type": "string"},
                "location": {"type": "string"},
                "is_anonymous": {"type": "boolean"}
            },
            "required": ["title", "description", "category"]
        },
        "ChangeStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "remark": {"type": "string"}
            },
            "required": ["status", "remark"]
        },
        "AssignRequest": {
            "type": "object",
            "properties": {
                "assigned_to": {"type": "string", "x-nullable": true}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
