// Package certs renders certificate documents to disk.
package certs

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	lms "github.com/bohemiyan/LMS"
)

var page = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Certificate of Completion</title></head>
<body>
<h1>Certificate of Completion</h1>
<p>This certifies that <strong>{{.UserName}}</strong> completed <strong>{{.ModuleTitle}}</strong>
with a final score of {{printf "%.1f" .Score}}.</p>
<p>Completed on {{.CompletedAt.Format "2006-01-02"}}. Reference {{.EnrollmentID}}.</p>
</body>
</html>
`))

// FileRenderer writes one HTML certificate per enrollment into Dir.
type FileRenderer struct {
	Dir string
}

// Render implements lms.CertificateRenderer and returns the written path.
func (r FileRenderer) Render(ctx context.Context, data lms.CertificateData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create certificate dir: %w", err)
	}

	path := filepath.Join(r.Dir, fmt.Sprintf("enrollment-%d.html", data.EnrollmentID))
	tmp, err := os.CreateTemp(r.Dir, ".certificate-*")
	if err != nil {
		return "", fmt.Errorf("failed to create certificate file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := page.Execute(tmp, data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to render certificate: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store certificate: %w", err)
	}
	return path, nil
}
