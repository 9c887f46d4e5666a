// internal/app/system/limits/limits.go
package limits

// Input size limits shared by the HTTP surface and the leave core.
const (
	// MaxJSONBody is the maximum size of a JSON request body.
	MaxJSONBody = 1 << 20 // 1 MB

	// MaxReasonLength caps a request reason, in characters.
	MaxReasonLength = 2000

	// MaxCommentsLength caps decision comments, in characters.
	MaxCommentsLength = 2000

	// MaxAttachments caps the attachment metadata entries on one request.
	MaxAttachments = 10
)
