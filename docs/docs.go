// Package docs registers the OpenAPI description served at /openapi.json.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Reports the selected vision provider, session store statistics, image pipeline counters and host memory usage.",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/session": {
            "get": {
                "description": "Returns the caller's session, creating a fresh one at INPUT when the cookie is missing or expired.",
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/studio.SessionView"}}
                }
            }
        },
        "/session/image": {
            "get": {
                "description": "Returns the captured image bytes.",
                "produces": ["image/jpeg", "image/png"],
                "tags": ["Session"],
                "summary": "Captured image",
                "responses": {
                    "200": {"description": "image bytes"},
                    "409": {"description": "no image captured", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            },
            "post": {
                "description": "Acquires an image from a multipart upload (field image) or a JSON body with base64 data. Moves INPUT to PROCESS.",
                "consumes": ["multipart/form-data", "application/json"],
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Upload image",
                "parameters": [
                    {"type": "file", "description": "jpg, jpeg or png image", "name": "image", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/studio.SessionView"}},
                    "409": {"description": "illegal transition or busy", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "422": {"description": "image could not be acquired", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/session/prompt": {
            "put": {
                "description": "Stores the optional prompt while in PROCESS.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Set prompt",
                "parameters": [
                    {"description": "prompt", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/studio.PromptRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/studio.SessionView"}},
                    "409": {"description": "illegal transition or busy", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/session/process": {
            "post": {
                "description": "Sends the image and optional prompt to the vision model. Success moves to RESULT; failure stays in PROCESS with the image kept.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Process image",
                "parameters": [
                    {"description": "optional prompt override", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/studio.PromptRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/studio.SessionView"}},
                    "409": {"description": "illegal transition or busy", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "502": {"description": "model error", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/session/reset": {
            "post": {
                "description": "Discards the image, prompt and response and returns to INPUT.",
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Start over",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/studio.SessionView"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.APIResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "studio.ImageView": {
            "type": "object",
            "properties": {
                "filename": {"type": "string"},
                "format": {"type": "string"},
                "height": {"type": "integer"},
                "size": {"type": "integer"},
                "source": {"type": "string"},
                "url": {"type": "string"},
                "width": {"type": "integer"}
            }
        },
        "studio.PromptRequest": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string"}
            }
        },
        "studio.SessionView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "stage": {"type": "string", "enum": ["INPUT", "PROCESS", "RESULT"]},
                "image": {"$ref": "#/definitions/studio.ImageView"},
                "prompt": {"type": "string"},
                "response": {"type": "string"},
                "pending": {"type": "boolean"},
                "last_error": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Image Processor API",
	Description:      "Upload or capture an image, add an optional prompt and get a vision model's answer.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
