package packager

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/lambda-packager/internal/archive"
	"github.com/oshokin/lambda-packager/internal/config"
	"github.com/oshokin/lambda-packager/internal/logger"
	"github.com/oshokin/lambda-packager/internal/parameters"
	"github.com/oshokin/lambda-packager/internal/storage"
	"github.com/oshokin/lambda-packager/internal/version"
)

// Content types of uploaded artifacts.
const (
	contentTypeZip  = "application/zip"
	contentTypeJSON = "application/json"
	contentTypeYAML = "application/x-yaml"
)

// postbuild uploads the archive, writes the parameter document, and uploads it with the template.
// Nothing is rolled back on failure; re-running re-issues every upload.
func (p *packager) postbuild(ctx context.Context) error {
	if err := config.ValidateUpload(p.cfg); err != nil {
		return err
	}

	uploader, err := p.objectStore()
	if err != nil {
		return err
	}

	archivePath := p.cfg.Path(p.cfg.ArchiveFile)

	archiveData, err := os.ReadFile(filepath.Clean(archivePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", archivePath, errNoArchive)
		}

		return fmt.Errorf("read archive: %w", err)
	}

	templatePath := p.cfg.Path(p.cfg.TemplateFile)

	templateData, err := os.ReadFile(filepath.Clean(templatePath))
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}

	hasher := archive.ChecksumFunction.New()
	_, _ = hasher.Write(archiveData)

	versionID, err := uploader.Put(ctx, storage.Object{
		Bucket:      p.cfg.Bucket,
		Key:         p.cfg.Key,
		Body:        bytes.NewReader(archiveData),
		ContentType: contentTypeZip,
		Metadata: p.metadata(map[string]string{
			"sha512": base64.StdEncoding.EncodeToString(hasher.Sum(nil)),
		}),
	})
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	logger.InfoKV(ctx, "Archive uploaded", "bucket", p.cfg.Bucket, "key", p.cfg.Key, "version_id", versionID)

	doc, err := parameters.New(parameters.Location{
		Bucket:  p.cfg.Bucket,
		Key:     p.cfg.Key,
		Version: versionID,
	}, p.cfg.RoleARN, parameters.PolicyVariant(p.cfg.StackPolicy))
	if err != nil {
		return err
	}

	docData, err := doc.Marshal()
	if err != nil {
		return err
	}

	digest, err := doc.Digest()
	if err != nil {
		return err
	}

	docPath := p.cfg.Path(p.cfg.ParametersFile)
	if err = parameters.WriteFile(docPath, docData); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Parameter document written", "path", docPath, "sha256", digest)

	if _, err = p.stdout.Write(docData); err != nil {
		return fmt.Errorf("echo parameter document: %w", err)
	}

	if _, err = uploader.Put(ctx, storage.Object{
		Bucket:      p.cfg.Bucket,
		Key:         p.cfg.ParametersKey,
		Body:        bytes.NewReader(docData),
		ContentType: contentTypeJSON,
		Metadata:    p.metadata(map[string]string{"sha256": digest}),
	}); err != nil {
		return fmt.Errorf("upload parameter document: %w", err)
	}

	if _, err = uploader.Put(ctx, storage.Object{
		Bucket:      p.cfg.Bucket,
		Key:         p.cfg.TemplateKey,
		Body:        bytes.NewReader(templateData),
		ContentType: templateContentType(templatePath),
		Metadata:    p.metadata(nil),
	}); err != nil {
		return fmt.Errorf("upload template: %w", err)
	}

	logger.InfoKV(ctx, "Artifacts staged",
		"bucket", p.cfg.Bucket,
		"parameters_key", p.cfg.ParametersKey,
		"template_key", p.cfg.TemplateKey,
	)

	return nil
}

// metadata returns the user metadata attached to every upload plus extra.
func (p *packager) metadata(extra map[string]string) map[string]string {
	md := map[string]string{
		"build-id":         p.buildID,
		"packager-version": version.Short(),
	}

	maps.Copy(md, extra)

	return md
}

// templateContentType picks the content type from the template file extension.
func templateContentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return contentTypeJSON
	}

	return contentTypeYAML
}
