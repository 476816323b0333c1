package tools

import "errors"

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrSchemaRequiredUnknown is returned when a schema requires a
	// parameter it does not declare.
	ErrSchemaRequiredUnknown = errors.New("required parameter not declared in properties")

	// ErrManifestInvalid is returned when a YAML manifest fails to parse
	// or declares an unusable tool.
	ErrManifestInvalid = errors.New("invalid tool manifest")
)
