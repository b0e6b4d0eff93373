package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Graph errors (E101-E109)
	// ============================================

	"E101": {
		Category: CategoryGraph,
		Message:  "Cyclic dependency between reactive fields",
		Detail:   "A derived field directly or indirectly depends on itself. Recomputation order cannot be established.",
	},
	"E102": {
		Category: CategoryGraph,
		Message:  "Dangling field reference",
		Detail:   "An expression reads a field that is not declared in the unit.",
	},
	"E103": {
		Category: CategoryInline,
		Message:  "Fragment expansion depth exceeded",
		Detail:   "A named expression fragment (transitively) calls itself. Fragments must be non-recursive.",
	},

	// ============================================
	// Expression errors (E110-E119)
	// ============================================

	"E110": {
		Category: CategoryDecl,
		Message:  "Expression parse error",
		Detail:   "The expression source is outside the restricted grammar.",
	},

	// ============================================
	// Declaration errors (E120-E129)
	// ============================================

	"E120": {
		Category: CategoryDecl,
		Message:  "Unit declaration load failed",
		Detail:   "A unit declaration file could not be parsed.",
	},
	"E121": {
		Category: CategoryDecl,
		Message:  "Duplicate field declaration",
		Detail:   "Two fields in the same unit share a name.",
	},
	"E122": {
		Category: CategoryDecl,
		Message:  "Derived field without expression",
		Detail:   "Derived, validity, and error fields must declare an expression.",
	},
	"E123": {
		Category: CategoryDecl,
		Message:  "Animated field not declared",
		Detail:   "An animated configuration references a field the unit does not declare.",
	},

	// ============================================
	// Artifact errors (E130-E139)
	// ============================================

	"E130": {
		Category: CategoryArtifact,
		Message:  "Artifact write failed",
		Detail:   "The generated client module could not be written to the artifact directory.",
	},
	"E131": {
		Category: CategoryArtifact,
		Message:  "Manifest write failed",
		Detail:   "The artifact manifest could not be regenerated.",
	},
	"E132": {
		Category: CategoryArtifact,
		Message:  "Artifact publish failed",
		Detail:   "The generated client module could not be published to the remote sink.",
	},

	// ============================================
	// Configuration errors (E140-E149)
	// ============================================

	"E140": {
		Category: CategoryConfig,
		Message:  "Invalid mirage.json",
		Detail:   "The mirage.json configuration file is malformed.",
	},
	"E141": {
		Category: CategoryConfig,
		Message:  "Not a Mirage project",
		Detail:   "The current directory has no mirage.json. Run this command from a project root.",
	},

	// ============================================
	// Protocol errors (E150-E159)
	// ============================================

	"E150": {
		Category: CategoryProtocol,
		Message:  "Invalid sync frame",
		Detail:   "A synchronization frame could not be decoded.",
	},
	"E151": {
		Category: CategoryProtocol,
		Message:  "Unknown sync field",
		Detail:   "The mutation targets a field the session does not own.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
