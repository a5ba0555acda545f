package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// FolderStore is the slice of the object/folder storage service the
// dispatcher needs: find-or-create by name under a parent, and upload a
// named binary into a folder. Both are idempotent-by-name within a parent.
type FolderStore interface {
	FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error)
	Upload(ctx context.Context, folderID, name, mimeType string, data []byte) (string, error)
}

const folderMimeType = "application/vnd.google-apps.folder"

// DriveStore implements FolderStore on the Google Drive API.
type DriveStore struct {
	client *drive.Service
}

// NewDriveStore builds a Drive-backed FolderStore from a Service Account
// credentials file.
func NewDriveStore(ctx context.Context, credentialsPath string) (*DriveStore, error) {
	client, err := drive.NewService(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveStore{client: client}, nil
}

// FindOrCreateFolder returns the id of the folder with the given name under
// parentID, creating it when absent. Drive allows duplicate names, so an
// existing folder is always preferred over creating a second one.
func (s *DriveStore) FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeDriveQuery(name), parentID, folderMimeType)
	list, err := s.client.Files.List().
		Context(ctx).
		Q(query).
		Fields("files(id, name)").
		PageSize(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("search folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	created, err := s.client.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return created.Id, nil
}

// Upload stores data under name inside folderID, overwriting an existing
// file of the same name so a re-triggered dispatch does not litter the
// folder with duplicates.
func (s *DriveStore) Upload(ctx context.Context, folderID, name, mimeType string, data []byte) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeDriveQuery(name), folderID)
	list, err := s.client.Files.List().
		Context(ctx).
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("search file %q: %w", name, err)
	}

	if len(list.Files) > 0 {
		id := list.Files[0].Id
		_, err := s.client.Files.Update(id, &drive.File{}).
			Context(ctx).
			Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
			Do()
		if err != nil {
			return "", fmt.Errorf("overwrite file %q: %w", name, err)
		}
		return id, nil
	}

	created, err := s.client.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{folderID},
	}).Context(ctx).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Do()
	if err != nil {
		return "", fmt.Errorf("upload file %q: %w", name, err)
	}
	return created.Id, nil
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}
