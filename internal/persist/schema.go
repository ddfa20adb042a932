// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package persist

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind names the payload stored in an envelope. It doubles as the backend key.
type Kind string

const (
	KindTermCache      Kind = "term-cache"
	KindEntityResearch Kind = "entity-research"
	KindConversations  Kind = "conversations"
)

// Shared definitions are repeated per schema because each is compiled standalone.
const resultSetDef = `{
	"type": "object",
	"required": ["source", "query", "records"],
	"properties": {
		"source": {"type": "string"},
		"query": {
			"type": "object",
			"properties": {"terms": {"type": ["array", "null"], "items": {"type": "string"}}}
		},
		"records": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["url", "title"],
				"properties": {
					"url": {"type": "string"},
					"title": {"type": "string"},
					"domain": {"type": "string"},
					"content_excerpt": {"type": "string"},
					"relevance_score": {"type": "number", "minimum": 0, "maximum": 1},
					"freshness_score": {"type": "number", "minimum": 0, "maximum": 1},
					"credibility_score": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`

const envelopeHead = `{
	"type": "object",
	"required": ["version", "kind", "data"],
	"properties": {
		"version": {"const": 1},
		"kind": {"const": %q},
		"savedAt": {"type": "string"},
		"data": %s
	}
}`

var termCacheData = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"required": ["terms", "results", "timestamp", "expiresAt"],
		"properties": {
			"terms": {"type": "array", "items": {"type": "string"}},
			"results": {"type": ["array", "null"], "items": ` + resultSetDef + `},
			"timestamp": {"type": "string"},
			"expiresAt": {"type": "string"}
		}
	}
}`

var entityResearchData = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"required": ["fileId", "queries", "status", "results", "timestamp"],
		"properties": {
			"fileId": {"type": "string", "minLength": 1},
			"queries": {"type": ["array", "null"]},
			"status": {"enum": ["pending", "completed", "failed"]},
			"results": {"type": ["array", "null"], "items": ` + resultSetDef + `},
			"timestamp": {"type": "string"}
		}
	}
}`

const messageDef = `{
	"type": "object",
	"required": ["id", "role", "content", "timestamp"],
	"properties": {
		"id": {"type": "string"},
		"conversationId": {"type": "string"},
		"role": {"enum": ["user", "assistant"]},
		"content": {"type": "string"},
		"timestamp": {"type": "string"}
	}
}`

var conversationsData = `{
	"type": "object",
	"required": ["conversations", "activeConversationId", "globalProfile"],
	"properties": {
		"conversations": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["id", "title", "messages", "files", "createdAt", "updatedAt"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"messages": {"type": ["array", "null"], "items": ` + messageDef + `},
					"files": {"type": ["array", "null"], "items": {"type": "string"}},
					"createdAt": {"type": "string"},
					"updatedAt": {"type": "string"}
				}
			}
		},
		"activeConversationId": {"type": ["string", "null"]},
		"globalProfile": {
			"type": "object",
			"required": ["files", "allPastMessages"],
			"properties": {
				"files": {
					"type": ["array", "null"],
					"items": {
						"type": "object",
						"required": ["id", "name"],
						"properties": {
							"id": {"type": "string"},
							"name": {"type": "string"},
							"content": {"type": "string"}
						}
					}
				},
				"allPastMessages": {"type": ["array", "null"], "items": ` + messageDef + `},
				"lastUpdated": {"type": "string"}
			}
		}
	}
}`

var schemas struct {
	once     sync.Once
	initErr  error
	compiled map[Kind]*jsonschema.Schema
}

func initSchemas() error {
	schemas.once.Do(func() {
		data := map[Kind]string{
			KindTermCache:      termCacheData,
			KindEntityResearch: entityResearchData,
			KindConversations:  conversationsData,
		}
		schemas.compiled = make(map[Kind]*jsonschema.Schema, len(data))
		for kind, d := range data {
			compiled, err := jsonschema.CompileString(string(kind)+".schema.json", fmt.Sprintf(envelopeHead, kind, d))
			if err != nil {
				schemas.initErr = fmt.Errorf("compiling %s schema: %w", kind, err)
				return
			}
			schemas.compiled[kind] = compiled
		}
	})
	return schemas.initErr
}

func schemaFor(kind Kind) (*jsonschema.Schema, error) {
	if err := initSchemas(); err != nil {
		return nil, err
	}
	s, ok := schemas.compiled[kind]
	if !ok {
		return nil, fmt.Errorf("no schema for kind %q", kind)
	}
	return s, nil
}
