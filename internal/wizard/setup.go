package wizard

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"plantbook/internal/opb"
	"plantbook/internal/plant"
	"plantbook/internal/store"
)

// legacyImagePath is the absolute form older installs stored; it maps to the
// relative default.
const legacyImagePath = "/config/www/images/plants/"

// ConnectionTester validates that a set of credentials can produce a usable
// API client. Auth failures must come back as *opb.AuthError.
type ConnectionTester func(ctx context.Context, clientID, secret string) error

// SetupFlow collects API credentials and the image download policy, creating
// or (in a re-auth context) updating the parent credential entry.
type SetupFlow struct {
	store      store.Store
	test       ConnectionTester
	configRoot string
	logger     *zap.Logger

	// reauth marks this session as re-authentication of the existing entry.
	reauth bool

	clientID string
	secret   string
}

// NewSetupFlow starts a fresh setup session.
func NewSetupFlow(st store.Store, test ConnectionTester, configRoot string, logger *zap.Logger) *SetupFlow {
	return &SetupFlow{
		store:      st,
		test:       test,
		configRoot: configRoot,
		logger:     logger.Named("wizard.setup"),
	}
}

// NewReauthFlow starts a session that updates the existing credential entry
// in place instead of creating a new one.
func NewReauthFlow(st store.Store, test ConnectionTester, logger *zap.Logger) *SetupFlow {
	return &SetupFlow{
		store:  st,
		test:   test,
		reauth: true,
		logger: logger.Named("wizard.reauth"),
	}
}

// Begin shows the credentials form. A re-auth session prefills the stored
// client id; a fresh session aborts if the integration is already set up.
func (f *SetupFlow) Begin() *Result {
	existing, configured := f.store.Credentials()

	if f.reauth {
		res := formResult(StepCredentials, nil)
		if configured {
			res.ClientID = existing.ClientID
		}
		return res
	}

	if configured {
		f.logger.Debug("Credentials already configured, aborting setup")
		return abortResult(AbortAlreadyConfigured)
	}
	return formResult(StepCredentials, nil)
}

// SubmitCredentials validates and connection-tests the entered credentials.
// On success a fresh session proceeds to the image configuration form; a
// re-auth session updates the stored entry and finishes.
func (f *SetupFlow) SubmitCredentials(ctx context.Context, clientID, secret string) *Result {
	clientID = strings.TrimSpace(clientID)
	secret = strings.TrimSpace(secret)

	if clientID == "" {
		f.logger.Warn("Client ID is required but not provided")
		return formResult(StepCredentials, map[string]string{sectionBase: "client_id_required"})
	}
	if secret == "" {
		f.logger.Warn("Secret is required but not provided")
		return formResult(StepCredentials, map[string]string{sectionBase: "secret_required"})
	}

	f.logger.Info("Testing API connection with provided credentials")
	if err := f.test(ctx, clientID, secret); err != nil {
		if opb.IsAuthError(err) {
			f.logger.Warn("API credential validation failed", zap.Error(err))
			return formResult(StepCredentials, map[string]string{sectionBase: "invalid_auth"})
		}
		f.logger.Error("API connection test failed", zap.Error(err))
		return formResult(StepCredentials, map[string]string{sectionBase: "cannot_connect"})
	}

	if f.reauth {
		existing, ok := f.store.Credentials()
		if !ok {
			existing = &plant.Credentials{DownloadPath: plant.DefaultImagePath}
		}
		updated := *existing
		updated.ClientID = clientID
		updated.Secret = secret
		if err := f.store.SetCredentials(&updated); err != nil {
			f.logger.Error("Failed to update credentials", zap.Error(err))
			return formResult(StepCredentials, map[string]string{sectionBase: "cannot_connect"})
		}
		f.logger.Info("Reauth completed, credentials updated")
		return &Result{Kind: KindUpdated, Credentials: &updated}
	}

	f.clientID = clientID
	f.secret = secret
	return formResult(StepImageConfig, nil)
}

// SubmitImageConfig validates the image policy and persists the credential
// entry, finishing the flow.
func (f *SetupFlow) SubmitImageConfig(downloadImages bool, downloadPath string) *Result {
	if downloadPath == "" {
		downloadPath = plant.DefaultImagePath
	}

	if downloadImages {
		if err := ensureDirectory(downloadPath, f.configRoot); err != nil {
			f.logger.Warn("Image download path is not usable",
				zap.String("path", downloadPath),
				zap.Error(err))
			return formResult(StepImageConfig, map[string]string{"download_path": "invalid_path"})
		}
	}

	creds := &plant.Credentials{
		ClientID:       f.clientID,
		Secret:         f.secret,
		DownloadImages: downloadImages,
		DownloadPath:   downloadPath,
	}
	if err := f.store.SetCredentials(creds); err != nil {
		f.logger.Error("Failed to persist credentials", zap.Error(err))
		return formResult(StepImageConfig, map[string]string{sectionBase: "cannot_connect"})
	}

	f.logger.Info("Setup completed", zap.String("client_id", creds.ClientID))
	return &Result{Kind: KindCreated, Credentials: creds}
}

// OptionsFlow edits the image download policy of the existing credential
// entry.
type OptionsFlow struct {
	store      store.Store
	scheduler  *ReauthScheduler
	configRoot string
	logger     *zap.Logger
}

// NewOptionsFlow starts an options session.
func NewOptionsFlow(st store.Store, scheduler *ReauthScheduler, configRoot string, logger *zap.Logger) *OptionsFlow {
	return &OptionsFlow{
		store:      st,
		scheduler:  scheduler,
		configRoot: configRoot,
		logger:     logger.Named("wizard.options"),
	}
}

// Begin shows the image policy form with current values, unless a re-auth
// flow is pending for the entry.
func (f *OptionsFlow) Begin() *Result {
	creds, ok := f.store.Credentials()
	if !ok {
		return abortResult(AbortMissingAPICreds)
	}
	if f.scheduler.Pending(creds.ClientID) {
		return abortResult(AbortReauthRequired)
	}

	res := formResult(StepOptions, nil)
	res.Credentials = creds
	return res
}

// Submit validates and stores the new image policy.
func (f *OptionsFlow) Submit(downloadImages bool, downloadPath string) *Result {
	creds, ok := f.store.Credentials()
	if !ok {
		return abortResult(AbortMissingAPICreds)
	}
	if f.scheduler.Pending(creds.ClientID) {
		return abortResult(AbortReauthRequired)
	}

	if downloadPath == "" {
		downloadPath = plant.DefaultImagePath
	}
	if downloadImages {
		if err := ensureDirectory(downloadPath, f.configRoot); err != nil {
			return formResult(StepOptions, map[string]string{"download_path": "invalid_path"})
		}
	}

	updated := *creds
	updated.DownloadImages = downloadImages
	updated.DownloadPath = downloadPath
	if err := f.store.SetCredentials(&updated); err != nil {
		f.logger.Error("Failed to update image policy", zap.Error(err))
		return formResult(StepOptions, map[string]string{sectionBase: "cannot_connect"})
	}

	f.logger.Info("Image policy updated",
		zap.Bool("download_images", downloadImages),
		zap.String("download_path", downloadPath))
	return &Result{Kind: KindUpdated, Credentials: &updated}
}

// ensureDirectory resolves the path against the config root when relative
// and verifies it exists or can be created.
func ensureDirectory(dir, configRoot string) error {
	resolved := resolvePath(dir, configRoot)
	return os.MkdirAll(resolved, 0o755)
}

// resolvePath maps the legacy absolute image path to its relative form, then
// joins relative paths onto the config root.
func resolvePath(dir, configRoot string) string {
	if dir == legacyImagePath {
		dir = plant.DefaultImagePath
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(configRoot, dir)
}
