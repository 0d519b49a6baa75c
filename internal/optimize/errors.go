package optimize

import "fmt"

// エラーコード。HTTPレスポンスとJobErrorイベントの双方で使われます。
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInvalidArchive   = "INVALID_ARCHIVE"
	CodeLimitExceeded    = "LIMIT_EXCEEDED"
	CodeStorageFailure   = "STORAGE_FAILURE"
	CodeArtifactNotFound = "ARTIFACT_NOT_FOUND"
	CodeJobNotFound      = "JOB_NOT_FOUND"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error はAPIレスポンスへ変換可能なドメインエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
