package submission

import (
	"errors"
	"net/url"
	"strings"

	"github.com/fdg312/informes-hub/internal/intake"
)

// Kind distinguishes how the outbound request is built.
type Kind string

const (
	KindDemo Kind = "demo"
	KindFile Kind = "file"
	KindURL  Kind = "url"
)

// ParseKind maps API input to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDemo:
		return KindDemo, nil
	case KindFile:
		return KindFile, nil
	case KindURL:
		return KindURL, nil
	}
	return "", ErrUnknownKind
}

// Request is one of DemoRequest, FileRequest or URLRequest. Requests are
// built at submission time and never modified.
type Request interface {
	Kind() Kind
}

type DemoRequest struct{}

func (DemoRequest) Kind() Kind { return KindDemo }

type FileRequest struct {
	File       intake.File
	FileKind   intake.Kind
	Supervisor string
	Project    string

	selection uint64 // slot sequence the file was taken from
}

func (FileRequest) Kind() Kind { return KindFile }

type URLRequest struct {
	ExcelURL string
}

func (URLRequest) Kind() Kind { return KindURL }

// Metadata is the optional free text sent with a file.
type Metadata struct {
	Supervisor string `json:"supervisor"`
	Project    string `json:"project"`
}

var (
	ErrInFlight    = errors.New("ya hay una solicitud en curso")
	ErrNoValidFile = errors.New("no hay un archivo válido seleccionado")
	ErrInvalidURL  = errors.New("la URL del archivo Excel no es válida")
	ErrUnknownKind = errors.New("tipo de solicitud desconocido")
	ErrClosed      = errors.New("la sesión está cerrada")
)

// NoFileMessage is shown when a file submission has nothing staged.
const NoFileMessage = "Por favor, selecciona un archivo primero."

func newURLRequest(raw string) (URLRequest, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return URLRequest{}, ErrInvalidURL
	}
	return URLRequest{ExcelURL: raw}, nil
}
