package sigv4

// Signature Version 4 constants.
// Reference: https://docs.aws.amazon.com/IAM/latest/UserGuide/signing-elements.html
const (
	// signingAlgorithm is the SigV4 signing algorithm identifier.
	signingAlgorithm = "AWS4-HMAC-SHA256"

	// emptyStringSHA256 is the hex encoded SHA256 hash of an empty string,
	// used as the payload hash for requests with no body.
	emptyStringSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// timeFormat is the X-Amz-Date timestamp format (ISO8601 basic).
	timeFormat = "20060102T150405Z"

	// shortTimeFormat is the credential-scope date format.
	shortTimeFormat = "20060102"

	// requestSuffix terminates the credential scope and the key derivation chain.
	requestSuffix = "aws4_request"

	// Headers emitted by the signer.
	authorizationHeader = "Authorization"
	amzDateHeader       = "X-Amz-Date"
	securityTokenHeader = "X-Amz-Security-Token"
)
