package importer

import (
	"encoding/json"
	"fmt"
)

// Bitwarden unencrypted JSON export. Only login items (type 1) are imported;
// cards, identities and secure notes are counted as skipped. A login with a
// totp field produces both a credential and a TOTP record.

const bitwardenTypeLogin = 1

type bitwardenExport struct {
	Folders []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"folders"`
	Items []struct {
		Type     int    `json:"type"`
		Name     string `json:"name"`
		FolderID string `json:"folderId"`
		Notes    string `json:"notes"`
		Login    struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Totp     string `json:"totp"`
			URIs     []struct {
				URI string `json:"uri"`
			} `json:"uris"`
		} `json:"login"`
	} `json:"items"`
}

func parseBitwarden(data []byte) (*parsed, error) {
	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if export.Items == nil {
		return nil, fmt.Errorf("missing items array")
	}

	out := &parsed{}
	for _, f := range export.Folders {
		out.folders = append(out.folders, parsedFolder{ref: f.ID, name: f.Name})
	}
	for _, item := range export.Items {
		if item.Type != bitwardenTypeLogin {
			out.skipped++
			continue
		}
		cred := parsedCredential{
			folderRef: item.FolderID,
			name:      item.Name,
			username:  item.Login.Username,
			password:  item.Login.Password,
			notes:     item.Notes,
		}
		if len(item.Login.URIs) > 0 {
			cred.url = item.Login.URIs[0].URI
		}
		out.credentials = append(out.credentials, cred)

		if item.Login.Totp != "" {
			out.totpSecrets = append(out.totpSecrets, parsedTotp{
				folderRef:   item.FolderID,
				issuer:      item.Name,
				accountName: item.Login.Username,
				secret:      item.Login.Totp,
			})
		}
	}
	return out, nil
}
