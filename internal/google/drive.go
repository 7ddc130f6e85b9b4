package google

import (
	"context"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/oauth2"
)

const fileFields = "files(id, name, mimeType, modifiedTime, webViewLink, trashed, owners(displayName, emailAddress))"

// FetchFiles lists the most recently modified files
func (w *Workspace) FetchFiles(ctx context.Context, userID string) (*Result[File], error) {
	return fetch(ctx, w, ServiceDrive, userID, DemoFiles, func(ctx context.Context) (*Result[File], error) {
		list, _, err := call(ctx, w, ServiceDrive, userID, func(ctx context.Context, client *oauth2.Client) (*drive.FileList, error) {
			svc, err := drive.NewService(ctx, w.clientOptions(ctx, ServiceDrive, client)...)
			if err != nil {
				return nil, errors.InternalError("failed to create drive client", err)
			}
			return svc.Files.List().
				PageSize(w.opts.FilesMaxResults).
				OrderBy("modifiedTime desc").
				Q("trashed = false").
				Fields(googleapi.Field(fileFields)).
				Context(ctx).
				Do()
		})
		if err != nil {
			return nil, err
		}

		items := make([]File, 0, len(list.Files))
		for _, f := range list.Files {
			if f.Trashed {
				continue
			}
			items = append(items, normalizeFile(f))
		}
		return &Result[File]{Items: items}, nil
	})
}

func normalizeFile(f *drive.File) File {
	out := File{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		WebLink:  f.WebViewLink,
	}
	if modified, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		out.ModifiedAt = modified.UTC()
	}
	if len(f.Owners) > 0 {
		out.Owner = f.Owners[0].DisplayName
		if out.Owner == "" {
			out.Owner = f.Owners[0].EmailAddress
		}
	}
	return out
}
