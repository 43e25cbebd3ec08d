package importer

import (
	"encoding/json"
	"fmt"
)

// Native export format. Secrets in the file are plaintext; the pipeline
// encrypts them on write, so an export file must be treated as sensitive.

type wkeepExport struct {
	Version int `json:"version"`
	Folders []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"folders"`
	Credentials []struct {
		FolderID string `json:"folderId"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Password string `json:"password"`
		URL      string `json:"url"`
		Notes    string `json:"notes"`
	} `json:"credentials"`
	TotpSecrets []struct {
		FolderID    string `json:"folderId"`
		Issuer      string `json:"issuer"`
		AccountName string `json:"accountName"`
		SecretKey   string `json:"secretKey"`
		Algorithm   string `json:"algorithm"`
		Digits      int    `json:"digits"`
		Period      int    `json:"period"`
	} `json:"totpSecrets"`
}

func parseWKeep(data []byte) (*parsed, error) {
	var export wkeepExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if export.Version == 0 {
		return nil, fmt.Errorf("missing version field")
	}

	out := &parsed{}
	for _, f := range export.Folders {
		out.folders = append(out.folders, parsedFolder{ref: f.ID, name: f.Name})
	}
	for _, c := range export.Credentials {
		out.credentials = append(out.credentials, parsedCredential{
			folderRef: c.FolderID,
			name:      c.Name,
			username:  c.Username,
			password:  c.Password,
			url:       c.URL,
			notes:     c.Notes,
		})
	}
	for _, tp := range export.TotpSecrets {
		out.totpSecrets = append(out.totpSecrets, parsedTotp{
			folderRef:   tp.FolderID,
			issuer:      tp.Issuer,
			accountName: tp.AccountName,
			secret:      tp.SecretKey,
			algorithm:   tp.Algorithm,
			digits:      tp.Digits,
			period:      tp.Period,
		})
	}
	return out, nil
}
