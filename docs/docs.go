// Package docs describes the console API for the swagger UI.
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
        "/api/jobs": {
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Jobs"
                ],
                "summary": "Submit one target",
                "description": "Queue a policy-table render for one target. A job already in flight for the target is adopted.",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Job request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/model.SubmitJobRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/model.SubmitJobResponse"
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "502": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/jobs/{jobId}/status": {
            "get": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Jobs"
                ],
                "summary": "Read job status",
                "description": "Read the current status of a job once from the relay",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Job ID",
                        "name": "jobId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.JobStatus"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "502": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/artifacts/{artifactId}/register": {
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Jobs"
                ],
                "summary": "Register an artifact",
                "description": "Publish a rendered artifact. Publishing twice reports alreadyRegistered.",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Artifact ID",
                        "name": "artifactId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.RegisterResponse"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "502": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/batches": {
            "get": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "List open batches",
                "parameters": [],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "array",
                                "items": {
                                    "type": "string"
                                }
                            }
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "Start a batch",
                "description": "Render every target one at a time through the relay",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Batch request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/model.CreateBatchRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/model.CreateBatchResponse"
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/batches/{batchId}": {
            "get": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "Batch snapshot",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Batch ID",
                        "name": "batchId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.BatchSnapshot"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            },
            "delete": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "Close a batch view",
                "description": "Stops local polling. Jobs already at the relay keep running.",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Batch ID",
                        "name": "batchId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/batches/{batchId}/register": {
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "Register every completed target",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Batch ID",
                        "name": "batchId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.RegistrationSummary"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/batches/{batchId}/items/{targetId}/retry": {
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "Retry a failed target",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Batch ID",
                        "name": "batchId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Target ID",
                        "name": "targetId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/model.BatchSnapshot"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/batches/{batchId}/items/{targetId}/register": {
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "Register one target",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Batch ID",
                        "name": "batchId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Target ID",
                        "name": "targetId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.RegisterResponse"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/preferences/{targetId}": {
            "get": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Preferences"
                ],
                "summary": "Saved groups of a target",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Target ID",
                        "name": "targetId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.GroupPreference"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            },
            "put": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Preferences"
                ],
                "summary": "Save groups of a target",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Target ID",
                        "name": "targetId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Groups",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/model.GroupPreference"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.GroupPreference"
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/policy/schemas": {
            "get": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Policy"
                ],
                "summary": "Content schemas",
                "parameters": [],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/policy.Schema"
                            }
                        }
                    }
                }
            }
        },
        "/api/policy/normalize": {
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Policy"
                ],
                "summary": "Content to applyContent text",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Content",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/model.PolicyContent"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/policy/denormalize": {
            "post": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Policy"
                ],
                "summary": "applyContent text to content",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Text",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "applyContent": {
                                    "type": "string"
                                }
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/model.PolicyContent"
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/ws/batches/{batchId}": {
            "get": {
                "security": [
                    {
                        "GatewayUser": []
                    }
                ],
                "tags": [
                    "Batches"
                ],
                "summary": "Batch snapshot stream",
                "description": "WebSocket upgrade. Sends {type: snapshot} frames with the full batch snapshot and {type: closed} when the batch view is closed.",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Batch ID",
                        "name": "batchId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "101": {
                        "description": "Switching Protocols"
                    },
                    "401": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    },
                    "426": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/response.ErrorResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "response.ErrorDetail": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "details": {}
            }
        },
        "response.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "$ref": "#/definitions/response.ErrorDetail"
                }
            }
        },
        "model.PolicyContent": {
            "type": "object",
            "properties": {
                "category": {
                    "type": "string"
                },
                "directInput": {
                    "type": "boolean"
                },
                "fields": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "string"
                    }
                },
                "freeText": {
                    "type": "string"
                }
            },
            "required": [
                "category"
            ]
        },
        "model.SubmitJobRequest": {
            "type": "object",
            "properties": {
                "targetId": {
                    "type": "string"
                },
                "applyDate": {
                    "type": "string"
                },
                "applyContent": {
                    "type": "string"
                },
                "content": {
                    "$ref": "#/definitions/model.PolicyContent"
                },
                "accessGroupIds": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            },
            "required": [
                "targetId",
                "applyDate"
            ]
        },
        "model.QueueInfo": {
            "type": "object",
            "properties": {
                "queuePosition": {
                    "type": "integer"
                },
                "queueLength": {
                    "type": "integer"
                },
                "estimatedWaitSeconds": {
                    "type": "integer"
                },
                "queuedUserCount": {
                    "type": "integer"
                },
                "isProcessing": {
                    "type": "boolean"
                }
            }
        },
        "model.RelayHealth": {
            "type": "object",
            "properties": {
                "available": {
                    "type": "boolean"
                },
                "lastResponseTimeMs": {
                    "type": "integer"
                },
                "lastError": {
                    "type": "string"
                }
            }
        },
        "model.JobResult": {
            "type": "object",
            "properties": {
                "artifactId": {
                    "type": "string"
                },
                "imageUrl": {
                    "type": "string"
                },
                "spreadsheetUrl": {
                    "type": "string"
                }
            }
        },
        "model.JobStatus": {
            "type": "object",
            "properties": {
                "jobId": {
                    "type": "string"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "queued",
                        "processing",
                        "completed",
                        "failed"
                    ]
                },
                "progress": {
                    "type": "integer"
                },
                "message": {
                    "type": "string"
                },
                "queueInfo": {
                    "$ref": "#/definitions/model.QueueInfo"
                },
                "relayHealth": {
                    "$ref": "#/definitions/model.RelayHealth"
                },
                "result": {
                    "$ref": "#/definitions/model.JobResult"
                },
                "error": {
                    "type": "string"
                },
                "failureReason": {
                    "type": "string"
                }
            }
        },
        "model.SubmitJobResponse": {
            "type": "object",
            "properties": {
                "jobId": {
                    "type": "string"
                },
                "adopted": {
                    "type": "boolean"
                },
                "status": {
                    "$ref": "#/definitions/model.JobStatus"
                }
            }
        },
        "model.BatchTarget": {
            "type": "object",
            "properties": {
                "targetId": {
                    "type": "string"
                },
                "accessGroupIds": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            },
            "required": [
                "targetId"
            ]
        },
        "model.CreateBatchRequest": {
            "type": "object",
            "properties": {
                "applyDate": {
                    "type": "string"
                },
                "applyContent": {
                    "type": "string"
                },
                "content": {
                    "$ref": "#/definitions/model.PolicyContent"
                },
                "targets": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/model.BatchTarget"
                    }
                }
            },
            "required": [
                "applyDate",
                "targets"
            ]
        },
        "model.RegistrationState": {
            "type": "object",
            "properties": {
                "kind": {
                    "type": "string",
                    "enum": [
                        "unregistered",
                        "registered",
                        "alreadyRegistered",
                        "registrationFailed"
                    ]
                },
                "reason": {
                    "type": "string"
                }
            }
        },
        "model.BatchItem": {
            "type": "object",
            "properties": {
                "targetId": {
                    "type": "string"
                },
                "accessGroupIds": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "status": {
                    "$ref": "#/definitions/model.JobStatus"
                },
                "registration": {
                    "$ref": "#/definitions/model.RegistrationState"
                },
                "attempt": {
                    "type": "integer"
                }
            }
        },
        "model.SnapshotCounts": {
            "type": "object",
            "properties": {
                "total": {
                    "type": "integer"
                },
                "pending": {
                    "type": "integer"
                },
                "queued": {
                    "type": "integer"
                },
                "processing": {
                    "type": "integer"
                },
                "completed": {
                    "type": "integer"
                },
                "failed": {
                    "type": "integer"
                },
                "registered": {
                    "type": "integer"
                },
                "registrationFailed": {
                    "type": "integer"
                }
            }
        },
        "model.BatchSnapshot": {
            "type": "object",
            "properties": {
                "batchId": {
                    "type": "string"
                },
                "items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/model.BatchItem"
                    }
                },
                "counts": {
                    "$ref": "#/definitions/model.SnapshotCounts"
                },
                "finished": {
                    "type": "boolean"
                },
                "publishOffered": {
                    "type": "boolean"
                },
                "closeable": {
                    "type": "boolean"
                }
            }
        },
        "model.CreateBatchResponse": {
            "type": "object",
            "properties": {
                "batchId": {
                    "type": "string"
                },
                "snapshot": {
                    "$ref": "#/definitions/model.BatchSnapshot"
                }
            }
        },
        "model.RegisterResponse": {
            "type": "object",
            "properties": {
                "artifactId": {
                    "type": "string"
                },
                "registration": {
                    "$ref": "#/definitions/model.RegistrationState"
                }
            }
        },
        "model.RegistrationSummary": {
            "type": "object",
            "properties": {
                "attempted": {
                    "type": "integer"
                },
                "registered": {
                    "type": "integer"
                },
                "alreadyRegistered": {
                    "type": "integer"
                },
                "failed": {
                    "type": "integer"
                },
                "closeable": {
                    "type": "boolean"
                },
                "snapshot": {
                    "$ref": "#/definitions/model.BatchSnapshot"
                }
            }
        },
        "model.GroupPreference": {
            "type": "object",
            "properties": {
                "targetId": {
                    "type": "string"
                },
                "accessGroupIds": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            },
            "required": [
                "accessGroupIds"
            ]
        },
        "policy.Field": {
            "type": "object",
            "properties": {
                "key": {
                    "type": "string"
                },
                "label": {
                    "type": "string"
                },
                "required": {
                    "type": "boolean"
                }
            }
        },
        "policy.Schema": {
            "type": "object",
            "properties": {
                "category": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "fields": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/policy.Field"
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "GatewayUser": {
            "description": "User id set by the gateway",
            "type": "apiKey",
            "name": "X-User-Id",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Policy Desk API",
	Description:      "Console backend for rendering and publishing policy tables through the relay.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
