// Package importer brings external password-manager exports into the vault.
// A run always produces a terminal Result: parse failures, unknown folders
// and per-record errors are contained and reported, never escalated into a
// crash. Only a locked vault or an unrecognized format aborts a run.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/whisperrkeep/wkeep/internal/crypto"
	"github.com/whisperrkeep/wkeep/internal/logger"
	"github.com/whisperrkeep/wkeep/internal/store"
	"github.com/whisperrkeep/wkeep/internal/vault"
)

// Format names a supported export format.
type Format string

const (
	FormatBitwarden Format = "bitwarden"
	FormatWKeep     Format = "wkeep"
)

var ErrUnknownFormat = errors.New("unknown import format")

const totalSteps = 4

// Progress is a snapshot delivered to the progress callback. Item counts are
// only meaningful during the record stage.
type Progress struct {
	Message        string `json:"message"`
	CurrentStep    int    `json:"currentStep"`
	TotalSteps     int    `json:"totalSteps"`
	ItemsProcessed int    `json:"itemsProcessed"`
	ItemsTotal     int    `json:"itemsTotal"`
}

// Summary counts what a run did.
type Summary struct {
	FoldersCreated     int `json:"foldersCreated"`
	CredentialsCreated int `json:"credentialsCreated"`
	TotpSecretsCreated int `json:"totpSecretsCreated"`
	Skipped            int `json:"skipped"`
	SkippedExisting    int `json:"skippedExisting"`
	Errors             int `json:"errors"`
}

// Result is the terminal outcome of a run. Success is true iff no record
// failed; skips do not count against it.
type Result struct {
	Success       bool              `json:"success"`
	Summary       Summary           `json:"summary"`
	Errors        []string          `json:"errors,omitempty"`
	FolderMapping map[string]string `json:"folderMapping,omitempty"`
}

// RecordStore is the slice of the database the pipeline writes through.
// *store.DB satisfies it.
type RecordStore interface {
	CreateFolder(ctx context.Context, f store.Folder) (string, error)
	ListFolders(ctx context.Context, userID string) ([]store.Folder, error)
	CreateCredential(ctx context.Context, c store.Credential) (string, error)
	FindCredential(ctx context.Context, userID, name, username, folderID string) (*store.Credential, error)
	CreateTotpSecret(ctx context.Context, s store.TotpSecret) (string, error)
	FindTotpSecret(ctx context.Context, userID, issuer, accountName string) (*store.TotpSecret, error)
}

// Pipeline runs imports against an unlocked vault.
type Pipeline struct {
	sessions *vault.Manager
	records  RecordStore
	logger   *logger.Logger
}

func NewPipeline(sessions *vault.Manager, records RecordStore, log *logger.Logger) *Pipeline {
	return &Pipeline{sessions: sessions, records: records, logger: log}
}

// parsed is the format-independent shape both parsers produce. FolderRef
// carries the source file's folder id or name; the mapping stage resolves it.
type parsed struct {
	folders     []parsedFolder
	credentials []parsedCredential
	totpSecrets []parsedTotp
	skipped     int
}

type parsedFolder struct {
	ref  string
	name string
}

type parsedCredential struct {
	folderRef string
	name      string
	username  string
	password  string
	url       string
	notes     string
}

type parsedTotp struct {
	folderRef   string
	issuer      string
	accountName string
	secret      string
	algorithm   string
	digits      int
	period      int
}

// Run executes the four-stage pipeline: parse, map folders, write records,
// finalize. It returns an error only when the vault is locked or the format
// is unknown; everything else lands in the Result. Re-running the same file
// is safe: records already present are counted as skippedExisting.
func (p *Pipeline) Run(ctx context.Context, format Format, data []byte, userID string, onProgress func(Progress)) (*Result, error) {
	if !p.sessions.IsUnlocked() {
		return nil, vault.ErrLocked
	}
	var parse func([]byte) (*parsed, error)
	switch format {
	case FormatBitwarden:
		parse = parseBitwarden
	case FormatWKeep:
		parse = parseWKeep
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	report := func(pr Progress) {
		pr.TotalSteps = totalSteps
		if onProgress != nil {
			onProgress(pr)
		}
	}
	result := &Result{FolderMapping: map[string]string{}}
	fail := func(msg string) *Result {
		result.Errors = append(result.Errors, msg)
		result.Summary.Errors = len(result.Errors)
		result.Success = false
		return result
	}

	// Stage 1: parse.
	report(Progress{Message: "Parsing import file", CurrentStep: 1})
	src, err := parse(data)
	if err != nil {
		p.logger.Warn("import parse failed", "format", string(format), "error", err.Error())
		return fail(fmt.Sprintf("parsing %s export: %v", format, err)), nil
	}
	result.Summary.Skipped = src.skipped

	master := p.sessions.MasterKey()
	if master == nil {
		return nil, vault.ErrLocked
	}
	defer crypto.Zero(master)
	credKey, err := crypto.DeriveSubkey(master, "credential")
	if err != nil {
		return nil, fmt.Errorf("deriving credential key: %w", err)
	}
	defer crypto.Zero(credKey)
	totpKey, err := crypto.DeriveSubkey(master, "totp")
	if err != nil {
		return nil, fmt.Errorf("deriving totp key: %w", err)
	}
	defer crypto.Zero(totpKey)

	// Stage 2: folder mapping. Existing folders are reused by name so a
	// second run maps into the same tree instead of duplicating it.
	report(Progress{Message: "Mapping folders", CurrentStep: 2})
	existing, err := p.records.ListFolders(ctx, userID)
	if err != nil {
		return fail(fmt.Sprintf("listing folders: %v", err)), nil
	}
	byName := make(map[string]string, len(existing))
	for _, f := range existing {
		byName[f.Name] = f.ID
	}
	for _, f := range src.folders {
		if id, ok := byName[f.name]; ok {
			result.FolderMapping[f.ref] = id
			continue
		}
		id, err := p.records.CreateFolder(ctx, store.Folder{UserID: userID, Name: f.name})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("folder %q: %v", f.name, err))
			continue
		}
		byName[f.name] = id
		result.FolderMapping[f.ref] = id
		result.Summary.FoldersCreated++
	}

	// Stage 3: records. Failures accumulate; the run keeps going.
	itemsTotal := len(src.credentials) + len(src.totpSecrets)
	processed := 0
	step := func(msg string) {
		processed++
		report(Progress{Message: msg, CurrentStep: 3, ItemsProcessed: processed, ItemsTotal: itemsTotal})
	}
	report(Progress{Message: "Importing records", CurrentStep: 3, ItemsTotal: itemsTotal})

	for _, c := range src.credentials {
		folderID := result.FolderMapping[c.folderRef]
		dup, err := p.records.FindCredential(ctx, userID, c.name, c.username, folderID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("credential %q: %v", c.name, err))
			step(c.name)
			continue
		}
		if dup != nil {
			result.Summary.SkippedExisting++
			step(c.name)
			continue
		}
		cred := store.Credential{
			UserID:   userID,
			FolderID: folderID,
			Name:     c.name,
			Username: c.username,
			URL:      c.url,
		}
		if c.password != "" {
			if cred.Password, err = crypto.EncryptToBase64(credKey, []byte(c.password)); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("credential %q: %v", c.name, err))
				step(c.name)
				continue
			}
		}
		if c.notes != "" {
			if cred.Notes, err = crypto.EncryptToBase64(credKey, []byte(c.notes)); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("credential %q: %v", c.name, err))
				step(c.name)
				continue
			}
		}
		if _, err := p.records.CreateCredential(ctx, cred); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("credential %q: %v", c.name, err))
		} else {
			result.Summary.CredentialsCreated++
		}
		step(c.name)
	}

	for _, tp := range src.totpSecrets {
		label := tp.issuer + ":" + tp.accountName
		dup, err := p.records.FindTotpSecret(ctx, userID, tp.issuer, tp.accountName)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("totp %q: %v", label, err))
			step(label)
			continue
		}
		if dup != nil {
			result.Summary.SkippedExisting++
			step(label)
			continue
		}
		enc, err := crypto.EncryptToBase64(totpKey, []byte(tp.secret))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("totp %q: %v", label, err))
			step(label)
			continue
		}
		rec := store.TotpSecret{
			UserID:      userID,
			FolderID:    result.FolderMapping[tp.folderRef],
			Issuer:      tp.issuer,
			AccountName: tp.accountName,
			SecretKey:   enc,
			Algorithm:   tp.algorithm,
			Digits:      tp.digits,
			Period:      tp.period,
		}
		if _, err := p.records.CreateTotpSecret(ctx, rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("totp %q: %v", label, err))
		} else {
			result.Summary.TotpSecretsCreated++
		}
		step(label)
	}

	// Stage 4: finalize.
	result.Summary.Errors = len(result.Errors)
	result.Success = result.Summary.Errors == 0
	report(Progress{Message: "Import complete", CurrentStep: 4})

	p.logger.Info("import finished",
		"format", string(format),
		"user_id", userID,
		"folders", result.Summary.FoldersCreated,
		"credentials", result.Summary.CredentialsCreated,
		"totp", result.Summary.TotpSecretsCreated,
		"skipped_existing", result.Summary.SkippedExisting,
		"errors", result.Summary.Errors,
	)
	return result, nil
}
