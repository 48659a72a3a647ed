package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes is 10 MiB. A file of exactly this size is accepted.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

var (
	ErrWrongType = errors.New("tipo de archivo no válido")
	ErrTooLarge  = errors.New("archivo demasiado grande")
)

const wrongTypeHint = "El archivo debe ser de formato Excel (.xlsx, .xls) o CSV (.csv)"

// Kind is the declared file kind, taken from the extension only.
type Kind string

const (
	KindXLSX    Kind = "xlsx"
	KindXLS     Kind = "xls"
	KindCSV     Kind = "csv"
	KindUnknown Kind = ""
)

// KindOf derives the kind from a file name, case-insensitively.
func KindOf(name string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), "."))
	switch Kind(ext) {
	case KindXLSX, KindXLS, KindCSV:
		return Kind(ext)
	}
	return KindUnknown
}

// ContentType is the MIME type sent upstream for the kind.
func (k Kind) ContentType() string {
	switch k {
	case KindXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case KindXLS:
		return "application/vnd.ms-excel"
	case KindCSV:
		return "text/csv"
	}
	return "application/octet-stream"
}

// Origin records which input path produced a file.
type Origin string

const (
	OriginDrop   Origin = "drop"
	OriginPicker Origin = "picker"
)

// ParseOrigin maps a form value to an Origin, defaulting to the picker.
func ParseOrigin(s string) Origin {
	if strings.EqualFold(strings.TrimSpace(s), string(OriginDrop)) {
		return OriginDrop
	}
	return OriginPicker
}

// File is a user-supplied file handle. MIMEType is advisory and never
// used for validation.
type File struct {
	Name     string
	Size     int64
	MIMEType string
	Origin   Origin
	Open     func() (io.ReadCloser, error)
}

// FromPath wraps a file on disk.
func FromPath(p string) (File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", p)
	}
	return File{
		Name:   filepath.Base(p),
		Size:   info.Size(),
		Origin: OriginPicker,
		Open: func() (io.ReadCloser, error) {
			return os.Open(p)
		},
	}, nil
}

// FromBytes wraps in-memory content.
func FromBytes(name string, data []byte, origin Origin) File {
	return File{
		Name:   name,
		Size:   int64(len(data)),
		Origin: origin,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// ValidationError is a local rejection. It never reaches the network.
type ValidationError struct {
	Reason  error // ErrWrongType or ErrTooLarge
	Message string
	Hint    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Code is the machine-readable rejection reason.
func (e *ValidationError) Code() string {
	if errors.Is(e.Reason, ErrTooLarge) {
		return "too_large"
	}
	return "wrong_type"
}

type Status int

const (
	StatusValid Status = iota
	StatusRejected
)

func (s Status) String() string {
	if s == StatusValid {
		return "valid"
	}
	return "rejected"
}

// Candidate is a staged file and its validation outcome. Each selection
// produces a new Candidate.
type Candidate struct {
	Name   string
	Size   int64
	Kind   Kind
	Origin Origin
	Status Status
	Err    *ValidationError

	file File
}

func (c Candidate) Valid() bool {
	return c.Status == StatusValid
}

// File returns the original handle of a valid candidate.
func (c Candidate) File() (File, bool) {
	if !c.Valid() {
		return File{}, false
	}
	return c.file, true
}

// Reason is the user-facing rejection message, empty when valid.
func (c Candidate) Reason() string {
	if c.Err == nil {
		return ""
	}
	return c.Err.Message
}

// Intake validates files from both the drop zone and the file picker.
type Intake struct {
	maxBytes int64
}

func New(maxBytes int64) *Intake {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Intake{maxBytes: maxBytes}
}

func (in *Intake) MaxBytes() int64 {
	return in.maxBytes
}

// Accept validates f without reading it. Extension is checked first,
// then size; the first failure wins.
func (in *Intake) Accept(f File) Candidate {
	c := Candidate{
		Name:   f.Name,
		Size:   f.Size,
		Kind:   KindOf(f.Name),
		Origin: f.Origin,
	}

	if c.Kind == KindUnknown {
		c.Status = StatusRejected
		c.Err = &ValidationError{Reason: ErrWrongType, Message: ErrWrongType.Error(), Hint: wrongTypeHint}
		return c
	}

	if f.Size > in.maxBytes {
		c.Status = StatusRejected
		c.Err = in.tooLarge()
		return c
	}

	c.Status = StatusValid
	c.file = f
	return c
}

// Receive validates an upload read from r. The name goes through Accept
// before any byte is read, so a wrong extension is rejected whatever the
// size. Otherwise at most MaxBytes+1 bytes are buffered and the copy goes
// through Accept again to settle the size. A rejected candidate never
// holds content.
func (in *Intake) Receive(name, mimeType string, origin Origin, r io.Reader) (Candidate, error) {
	if c := in.Accept(File{Name: name, Origin: origin}); !c.Valid() {
		return c, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, in.maxBytes+1))
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to read file: %w", err)
	}

	f := FromBytes(name, data, origin)
	f.MIMEType = mimeType
	return in.Accept(f), nil
}

// Stage copies a valid candidate into memory so it outlives the request
// that carried it. The copy is size-checked again against the bytes read.
func (in *Intake) Stage(c Candidate) (Candidate, error) {
	if !c.Valid() {
		if c.Err != nil {
			return c, c.Err
		}
		return c, ErrWrongType
	}

	if c.file.Open == nil {
		return c, fmt.Errorf("file %q has no content", c.Name)
	}
	rc, err := c.file.Open()
	if err != nil {
		return c, fmt.Errorf("failed to open file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, in.maxBytes+1))
	if err != nil {
		return c, fmt.Errorf("failed to read file: %w", err)
	}

	staged := FromBytes(c.Name, data, c.Origin)
	staged.MIMEType = c.file.MIMEType
	return in.Accept(staged), nil
}

func (in *Intake) tooLarge() *ValidationError {
	return &ValidationError{
		Reason:  ErrTooLarge,
		Message: fmt.Sprintf("El archivo es demasiado grande. El tamaño máximo es %dMB", in.maxBytes/(1024*1024)),
	}
}
