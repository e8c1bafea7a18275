package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CampusHQ Timetable API",
        "description": "Class scheduling, enrollment and calendar service",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Schedules", "description": "Scheduled class instance lifecycle"},
        {"name": "Enrollments", "description": "Student enrollment lifecycle"},
        {"name": "Waitlists", "description": "Class waitlist membership"},
        {"name": "Calendars", "description": "Student and instructor calendar feeds"},
        {"name": "Exports", "description": "Timetable exports"}
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/schedules": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Schedule a class instance",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"},
                    "409": {"description": "Instructor time conflict"}
                }
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get a scheduled instance",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/schedules/{id}/status": {
            "patch": {
                "tags": ["Schedules"],
                "summary": "Advance instance status",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StatusUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Illegal status transition"}
                }
            }
        },
        "/schedules/{id}/cancel": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Cancel an instance and cascade to enrollments",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CancelRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Instance already terminal"}
                }
            }
        },
        "/schedules/{id}/capacity": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Check remaining capacity for an instance",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/schedules/{id}/waitlist": {
            "get": {
                "tags": ["Waitlists"],
                "summary": "List waitlisted students for an instance in queue order",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/enrollments": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student into every session of a class",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Conflict, duplicate claim or class full"}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/enrollments/{id}/attendance": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Mark attendance for an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Illegal status transition"}
                }
            }
        },
        "/enrollments/{id}/cancel": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Cancel an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Illegal status transition"}
                }
            }
        },
        "/waitlists": {
            "post": {
                "tags": ["Waitlists"],
                "summary": "Join the waitlist for a class definition",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Waitlist closed or duplicate claim"}
                }
            }
        },
        "/students/{id}/calendar": {
            "get": {
                "tags": ["Calendars"],
                "summary": "Student calendar feed for a date range",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "from", "in": "query", "type": "string", "required": true},
                    {"name": "to", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/students/{id}/timetable/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export a student timetable as CSV",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "from", "in": "query", "type": "string", "required": true},
                    {"name": "to", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/instructors/{id}/schedule": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Instructor schedule for a date range",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "from", "in": "query", "type": "string", "required": true},
                    {"name": "to", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/instructors/{id}/calendar": {
            "get": {
                "tags": ["Calendars"],
                "summary": "Instructor calendar feed for a date range",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "from", "in": "query", "type": "string", "required": true},
                    {"name": "to", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/instructors/{id}/timetable/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export an instructor timetable as CSV or PDF",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "from", "in": "query", "type": "string", "required": true},
                    {"name": "to", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/class-definitions/{id}/capacity": {
            "get": {
                "tags": ["Calendars"],
                "summary": "Check whether any session of a class has open seats",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Unknown class definition"}
                }
            }
        }
    },
    "definitions": {
        "ScheduleRequest": {
            "type": "object",
            "properties": {
                "class_definition_id": {"type": "string"},
                "instructor_id": {"type": "string"},
                "start_at": {"type": "string", "format": "date-time"},
                "end_at": {"type": "string", "format": "date-time"},
                "timezone": {"type": "string"},
                "location": {"type": "object"}
            }
        },
        "StatusUpdateRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["SCHEDULED", "IN_PROGRESS", "COMPLETED"]}
            }
        },
        "CancelRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "class_definition_id": {"type": "string"}
            }
        },
        "AttendanceRequest": {
            "type": "object",
            "properties": {
                "attended": {"type": "boolean"}
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
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"}
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
