// Package docs is the swag-generated API description for raftpay's gin
// control planes (one instance per node: raftnode, participant,
// coordinator), registered with swag's global spec registry on import so
// ginSwagger.WrapHandler can serve it. Hand-maintained in the shape
// `swag init` produces, kept in sync with the @Summary/@Router annotations
// in internal/raft/server.go, internal/participant/server.go, and
// internal/coordinator/server.go.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "raftpay control plane",
        "description": "Raft consensus and two-phase-commit coordinator/participant RPC surface.",
        "version": "1.0"
    },
    "basePath": "/",
    "paths": {
        "/raft/vote": {
            "post": {
                "summary": "Cast a vote for a candidate in a Raft election",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/raft.VoteRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/raft.VoteReply"}}}
            }
        },
        "/raft/append-entries": {
            "post": {
                "summary": "Append (or heartbeat) log entries from the current leader",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/raft.AppendRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/raft.AppendReply"}}}
            }
        },
        "/raft/is-leader": {
            "post": {
                "summary": "Report whether this node currently believes itself leader",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/raft/heartbeat-interval": {
            "get": {
                "summary": "Get the leader's current heartbeat interval, in seconds",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            },
            "post": {
                "summary": "Retune the leader's heartbeat interval",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/raft/replication-simulation": {
            "post": {
                "summary": "Toggle replication-failure simulation on the leader",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/raft/submit-value": {
            "post": {
                "summary": "Submit an opaque value to the replicated log",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/raft/log-file": {
            "delete": {
                "summary": "Delete this node's durable log file",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/participant/prepare": {
            "post": {
                "summary": "Vote on whether a commit of tx would be legal",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/participant.Transaction"}}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/participant/commit": {
            "post": {
                "summary": "Apply this node's share of tx",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/participant.Transaction"}}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/participant/abort": {
            "post": {
                "summary": "Acknowledge that tx was aborted",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/participant.Transaction"}}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/participant/balance": {
            "get": {
                "summary": "Read this participant's durable balance",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            },
            "post": {
                "summary": "Overwrite the durable balance",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/participant/crash-scenario": {
            "post": {
                "summary": "Arm a one-shot failure injection",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/coordinator/start-transaction": {
            "post": {
                "summary": "Run the full 2PC protocol for a transfer",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/coordinator.Transaction"}}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/coordinator/recover-from-crash": {
            "post": {
                "summary": "Replay a journaled decision after a coordinator crash",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/coordinator/simulate-crash": {
            "post": {
                "summary": "Terminate the coordinator process abruptly",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        }
    },
    "definitions": {
        "raft.VoteRequest": {
            "type": "object",
            "properties": {
                "candidate": {"type": "string"},
                "term": {"type": "integer"},
                "last_log_term": {"type": "integer"},
                "last_log_index": {"type": "integer"}
            }
        },
        "raft.VoteReply": {
            "type": "object",
            "properties": {
                "term": {"type": "integer"},
                "vote_granted": {"type": "boolean"}
            }
        },
        "raft.AppendRequest": {
            "type": "object",
            "properties": {
                "term": {"type": "integer"},
                "leader": {"type": "string"},
                "prev_log_index": {"type": "integer"},
                "prev_log_term": {"type": "integer"},
                "entries": {"type": "array", "items": {"type": "object", "properties": {"term": {"type": "integer"}, "command": {"type": "string"}}}},
                "leader_commit": {"type": "integer"}
            }
        },
        "raft.AppendReply": {
            "type": "object",
            "properties": {
                "term": {"type": "integer"},
                "success": {"type": "boolean"}
            }
        },
        "participant.Transaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "source_account": {"type": "string"},
                "destination_account": {"type": "string"},
                "amount": {"type": "number"}
            }
        },
        "coordinator.Transaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "source_account": {"type": "string"},
                "destination_account": {"type": "string"},
                "amount": {"type": "number"},
                "simulate_crash": {"type": "boolean"},
                "recover": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported spec metadata, the shape swag init() generates
// alongside docTemplate above.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "raftpay control plane",
	Description:      "Raft consensus and two-phase-commit coordinator/participant RPC surface.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
