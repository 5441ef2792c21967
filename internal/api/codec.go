package api

import (
	"encoding/base64"
	"fmt"

	"github.com/kodejudge/kodejudge/internal/state"
)

// encodeText base64-encodes s. Empty input stays empty.
func encodeText(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decodeText decodes base64 text. Empty input stays empty.
func decodeText(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func encodeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	encoded := encodeText(*s)
	return &encoded
}

// encodeSubmission returns a copy of sub with its text payload fields
// base64-encoded: source code, stdin, stdout, stderr, compile output and
// the contents of additional files. Expected output is never encoded.
func encodeSubmission(sub *state.Submission) *state.Submission {
	encoded := *sub
	encoded.SourceCode = encodeText(sub.SourceCode)
	encoded.Stdin = encodeOptional(sub.Stdin)
	encoded.Stdout = encodeOptional(sub.Stdout)
	encoded.Stderr = encodeOptional(sub.Stderr)
	encoded.CompileOutput = encodeOptional(sub.CompileOutput)

	if len(sub.AdditionalFiles) > 0 {
		files := make([]state.AdditionalFile, len(sub.AdditionalFiles))
		for i, f := range sub.AdditionalFiles {
			files[i] = state.AdditionalFile{Name: f.Name, Content: encodeText(f.Content)}
		}
		encoded.AdditionalFiles = files
	}
	return &encoded
}

// decodeSubmissionRequest decodes the base64 text fields of an incoming
// submission in place.
func decodeSubmissionRequest(req *createSubmissionRequest) error {
	source, err := decodeText(req.SourceCode)
	if err != nil {
		return fmt.Errorf("Invalid Base64 data: %v", err)
	}
	req.SourceCode = source

	if req.Stdin != nil {
		stdin, err := decodeText(*req.Stdin)
		if err != nil {
			return fmt.Errorf("Invalid Base64 data: %v", err)
		}
		req.Stdin = &stdin
	}

	for i, f := range req.AdditionalFiles {
		content, err := decodeText(f.Content)
		if err != nil {
			return fmt.Errorf("Invalid Base64 in additional_files: %v", err)
		}
		req.AdditionalFiles[i].Content = content
	}
	return nil
}
