package pfx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// The four error kinds every failure of this package unwraps to.
//
// ErrIntegrity and ErrDecryption never carry detail about which check
// failed, so that a wrong password and a corrupted container look the same
// to the caller.
var (
	ErrStructure            = errors.New("pfx: malformed structure")
	ErrUnsupportedAlgorithm = errors.New("pfx: unsupported algorithm")
	ErrIntegrity            = errors.New("pfx: integrity check failed")
	ErrDecryption           = errors.New("pfx: decryption failed")
)

// errNestingLimit is wrapped together with ErrStructure when nested
// SafeContentsBags exceed DecodeOptions.MaxNestingDepth.
var errNestingLimit = errors.New("SafeContents nested too deep")

// LocationError reports where in the container an error occurred.
// ContentInfo is the index into the AuthenticatedSafe, or -1 if the error
// is not tied to one. Bag is the path of bag indices, outermost first,
// through nested SafeContents.
type LocationError struct {
	ContentInfo int
	Bag         []int
	Err         error
}

func (e *LocationError) Error() string {
	var sb strings.Builder
	if e.ContentInfo >= 0 {
		sb.WriteString("content info ")
		sb.WriteString(strconv.Itoa(e.ContentInfo))
	}
	if len(e.Bag) > 0 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("bag ")
		sb.WriteString(bagPath(e.Bag))
	}
	if sb.Len() == 0 {
		return e.Err.Error()
	}
	return sb.String() + ": " + e.Err.Error()
}

func (e *LocationError) Unwrap() error { return e.Err }

func bagPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

// atBag prefixes the bag path of err with index i, creating a
// LocationError if err does not carry one yet.
func atBag(i int, err error) error {
	var le *LocationError
	if errors.As(err, &le) {
		le.Bag = append([]int{i}, le.Bag...)
		return le
	}
	return &LocationError{ContentInfo: -1, Bag: []int{i}, Err: err}
}

// atContentInfo sets the content info index of err.
func atContentInfo(i int, err error) error {
	var le *LocationError
	if errors.As(err, &le) {
		le.ContentInfo = i
		return le
	}
	return &LocationError{ContentInfo: i, Err: err}
}

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrStructure}, args...)...)
}
