package wizard

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"plantbook/internal/images"
	"plantbook/internal/opb"
	"plantbook/internal/plant"
	"plantbook/internal/store"
)

// PlantAPI is the slice of the OpenPlantBook wrapper the plant flow needs.
type PlantAPI interface {
	Search(ctx context.Context, query string) ([]*opb.Plant, error)
	Details(ctx context.Context, pid string) (*opb.Plant, error)
}

// ImageFetcher downloads one image to a destination path.
type ImageFetcher interface {
	Download(ctx context.Context, srcURL, dest string) (string, error)
}

// PlantFlow is one wizard session adding or reconfiguring a plant record.
// A session holds the search state between steps and discards everything if
// it never reaches a terminal result.
type PlantFlow struct {
	store      store.Store
	api        PlantAPI
	fetcher    ImageFetcher
	scheduler  *ReauthScheduler
	configRoot string
	logger     *zap.Logger

	plantName string
	results   []*opb.Plant
	selected  *opb.Plant
}

// NewPlantFlow starts a session for adding a plant.
func NewPlantFlow(st store.Store, api PlantAPI, fetcher ImageFetcher, scheduler *ReauthScheduler, configRoot string, logger *zap.Logger) *PlantFlow {
	return &PlantFlow{
		store:      st,
		api:        api,
		fetcher:    fetcher,
		scheduler:  scheduler,
		configRoot: configRoot,
		logger:     logger.Named("wizard.plant"),
	}
}

// Begin shows the plant name form, unless a re-auth flow is already pending
// for the parent credentials.
func (f *PlantFlow) Begin() *Result {
	if res := f.guardReauth(); res != nil {
		return res
	}

	res := formResult(StepPlantName, nil)
	res.PlantName = f.plantName
	return res
}

// SubmitPlantName stores the query and runs the search.
func (f *PlantFlow) SubmitPlantName(ctx context.Context, name string) *Result {
	name = strings.TrimSpace(name)
	if name == "" {
		f.logger.Warn("Plant name is required but not provided")
		return formResult(StepPlantName, map[string]string{sectionBase: "plant_name_required"})
	}

	f.plantName = name
	f.logger.Info("Starting plant search", zap.String("plant_name", name))
	return f.search(ctx)
}

// search runs the external lookup and routes on the number of candidates.
func (f *PlantFlow) search(ctx context.Context) *Result {
	creds, ok := f.store.Credentials()
	if !ok || creds.ClientID == "" || creds.Secret == "" {
		f.logger.Error("No API credentials found in parent entry")
		return abortResult(AbortMissingAPICreds)
	}

	results, err := f.api.Search(ctx, f.plantName)
	if err != nil {
		if errors.Is(err, opb.ErrSDKUnavailable) {
			f.logger.Error("OpenPlantBook client is not available")
			return abortResult(AbortMissingDependency)
		}
		if opb.IsAuthError(err) {
			f.logger.Warn("Authentication failed during plant search",
				zap.String("plant_name", f.plantName),
				zap.Error(err))
			f.triggerReauth(creds.ClientID)
			return abortResult(AbortReauthRequired)
		}
		// Transient failure: re-show the name form with the query kept.
		f.logger.Error("Plant search failed",
			zap.String("plant_name", f.plantName),
			zap.Error(err))
		res := formResult(StepPlantName, map[string]string{sectionBase: "search_error"})
		res.PlantName = f.plantName
		return res
	}

	switch len(results) {
	case 0:
		f.logger.Info("No search results", zap.String("plant_name", f.plantName))
		res := formResult(StepNoResults, nil)
		res.PlantName = f.plantName
		res.Options = []Option{
			{Value: OptionManualEntry, Label: OptionManualEntry},
			{Value: OptionSearchAgain, Label: OptionSearchAgain},
		}
		return res
	case 1:
		f.logger.Info("Single search result, skipping selection",
			zap.String("plant_name", f.plantName))
		f.selected = results[0]
		f.enrichDetails(ctx)
		return f.configureForm(nil)
	default:
		f.logger.Info("Multiple search results",
			zap.String("plant_name", f.plantName),
			zap.Int("count", len(results)))
		f.results = results
		return f.selectionForm(nil)
	}
}

// selectionForm renders the disambiguation list plus the manual-entry and
// search-again pseudo-options.
func (f *PlantFlow) selectionForm(errs map[string]string) *Result {
	res := formResult(StepSelectPlant, errs)
	res.PlantName = f.plantName
	res.Options = make([]Option, 0, len(f.results)+2)
	for _, p := range f.results {
		res.Options = append(res.Options, Option{Value: p.PID, Label: p.Label()})
	}
	res.Options = append(res.Options,
		Option{Value: OptionManualEntry, Label: OptionManualEntry},
		Option{Value: OptionSearchAgain, Label: OptionSearchAgain},
	)
	return res
}

// SubmitNoResultsChoice handles the zero-result branch: manual entry or a
// new search.
func (f *PlantFlow) SubmitNoResultsChoice(action string) *Result {
	switch action {
	case OptionManualEntry:
		f.selected = nil
		return f.configureForm(nil)
	case OptionSearchAgain:
		return f.Begin()
	default:
		res := formResult(StepNoResults, nil)
		res.PlantName = f.plantName
		res.Options = []Option{
			{Value: OptionManualEntry, Label: OptionManualEntry},
			{Value: OptionSearchAgain, Label: OptionSearchAgain},
		}
		return res
	}
}

// SubmitSelection resolves the picked candidate, or one of the
// pseudo-options.
func (f *PlantFlow) SubmitSelection(ctx context.Context, pid string) *Result {
	switch pid {
	case OptionManualEntry:
		f.selected = nil
		return f.configureForm(nil)
	case OptionSearchAgain:
		return f.Begin()
	case "":
		return f.selectionForm(map[string]string{sectionBase: "no_plant_selected"})
	}

	for _, p := range f.results {
		if p.PID == pid {
			f.selected = p
			f.enrichDetails(ctx)
			return f.configureForm(nil)
		}
	}
	return f.selectionForm(map[string]string{sectionBase: "invalid_selection"})
}

// enrichDetails fetches the full record for the selected candidate when the
// search result did not already carry the care ranges. Failures never stop
// the flow: an auth failure schedules re-auth and the form opens unfilled,
// anything else is logged and skipped.
func (f *PlantFlow) enrichDetails(ctx context.Context) {
	if f.selected == nil || f.selected.HasRanges() || f.selected.PID == "" {
		return
	}

	detail, err := f.api.Details(ctx, f.selected.PID)
	if err != nil {
		if opb.IsAuthError(err) {
			f.logger.Warn("Authentication failed during plant detail fetch",
				zap.String("pid", f.selected.PID),
				zap.Error(err))
			if creds, ok := f.store.Credentials(); ok {
				f.triggerReauth(creds.ClientID)
			}
			return
		}
		f.logger.Warn("Failed to fetch plant details",
			zap.String("pid", f.selected.PID),
			zap.Error(err))
		return
	}
	f.selected.Merge(detail)
	f.logger.Debug("Plant details merged", zap.String("pid", f.selected.PID))
}

// configureForm renders the full parameter form, prefilled from the selected
// candidate or, for manual entry, from the search query.
func (f *PlantFlow) configureForm(errs map[string]string) *Result {
	res := formResult(StepConfigurePlant, errs)
	res.PlantName = f.plantName
	res.Defaults = f.formDefaults()
	res.CategoryOptions = f.categoryOptions(res.Defaults.Categories)
	return res
}

// formDefaults builds the prefill values for the configure form.
func (f *PlantFlow) formDefaults() *ConfigInput {
	if f.selected == nil {
		// Manual entry: seed both names from the query.
		name := plant.ProperCase(f.plantName)
		return &ConfigInput{
			FriendlyName:   name,
			ScientificName: name,
		}
	}

	p := f.selected
	defaults := &ConfigInput{
		ScientificName: plant.ProperCase(p.DisplayName()),
		CommonName:     plant.ProperCase(p.Alias),
		MinLight:       p.MinLightLux,
		MaxLight:       p.MaxLightLux,
		MinTemp:        p.MinTemp,
		MaxTemp:        p.MaxTemp,
		MinHumidity:    p.MinEnvHumid,
		MaxHumidity:    p.MaxEnvHumid,
		MinMoisture:    p.MinSoilMoist,
		MaxMoisture:    p.MaxSoilMoist,
		MinSoilEC:      p.MinSoilEC,
		MaxSoilEC:      p.MaxSoilEC,
	}
	defaults.FriendlyName = defaults.ScientificName
	if defaults.FriendlyName == "" {
		defaults.FriendlyName = defaults.CommonName
	}
	if p.Category != "" {
		defaults.Categories = plant.ProperCaseAll(plant.SplitCategories(p.Category))
	}
	return defaults
}

// categoryOptions merges categories of existing records with the candidate's
// own, sorted for the dropdown.
func (f *PlantFlow) categoryOptions(extra []string) []string {
	seen := make(map[string]struct{})
	for _, cat := range f.store.Categories() {
		seen[cat] = struct{}{}
	}
	for _, cat := range extra {
		if strings.TrimSpace(cat) != "" {
			seen[cat] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// SubmitConfiguration validates the full parameter form and, when valid,
// persists the new record (after a best-effort image download).
func (f *PlantFlow) SubmitConfiguration(ctx context.Context, in ConfigInput) *Result {
	normalized := in.normalized()
	if errs := validateConfig(normalized); len(errs) > 0 {
		res := f.configureForm(errs)
		// Keep what the user typed rather than resetting to the prefill.
		res.Defaults = &normalized
		return res
	}

	plantID := normalized.ScientificName
	if f.selected != nil && f.selected.PID != "" {
		plantID = f.selected.PID
	}
	name := normalized.FriendlyName
	if name == "" {
		name = normalized.ScientificName
	}
	deviceID := plant.GenerateDeviceID(plantID, normalized.ScientificName, name)

	rec := recordFromInput(normalized)
	rec.DeviceID = deviceID
	rec.Name = name
	rec.PlantID = plantID
	if f.selected != nil {
		rec.PlantBookData = f.selected.Raw()
	}

	f.downloadImage(ctx, rec)

	if err := f.store.Create(rec); err != nil {
		if errors.Is(err, store.ErrExists) {
			f.logger.Warn("A record for this plant already exists",
				zap.String("device_id", deviceID))
			return f.configureForm(map[string]string{sectionBase: "already_configured"})
		}
		f.logger.Error("Failed to persist plant record", zap.Error(err))
		return f.configureForm(map[string]string{sectionBase: "unknown"})
	}

	f.logger.Info("Plant record created",
		zap.String("device_id", deviceID),
		zap.String("name", name))
	return &Result{Kind: KindCreated, Record: rec}
}

// downloadImage fetches the candidate's photo when the parent entry enables
// downloads. Failures only cost the picture.
func (f *PlantFlow) downloadImage(ctx context.Context, rec *plant.Record) {
	if f.selected == nil || f.selected.ImageURL == "" || f.fetcher == nil {
		return
	}

	creds, ok := f.store.Credentials()
	if !ok || !creds.DownloadImages {
		f.logger.Debug("Image download disabled, skipping")
		return
	}

	downloadPath := creds.DownloadPath
	if downloadPath == "" {
		downloadPath = plant.DefaultImagePath
	}
	filename := images.Filename(f.selected.ImageURL, rec.DeviceID)
	dest := filepath.Join(resolvePath(downloadPath, f.configRoot), filename)

	downloaded, err := f.fetcher.Download(ctx, f.selected.ImageURL, dest)
	if err != nil {
		f.logger.Warn("Image download failed",
			zap.String("url", f.selected.ImageURL),
			zap.Error(err))
		return
	}

	if local := images.LocalURL(downloaded); local != "" {
		rec.EntityPicture = local
		f.logger.Debug("Entity picture set",
			zap.String("device_id", rec.DeviceID),
			zap.String("url", local))
	} else {
		f.logger.Warn("Downloaded image is outside the web root, no entity picture",
			zap.String("path", downloaded))
	}
}

// BeginReconfigure opens the parameter form for an existing record,
// prefilled from its current values with plant book data backfilling any
// gaps. Reconfiguration proceeds independently of any pending re-auth flow.
func (f *PlantFlow) BeginReconfigure(deviceID string) *Result {
	rec, ok := f.store.Get(deviceID)
	if !ok {
		return abortResult(AbortUnknownDevice)
	}

	res := formResult(StepReconfigure, nil)
	res.PlantName = rec.Name
	res.Defaults = reconfigureDefaults(rec)
	res.CategoryOptions = f.categoryOptions(res.Defaults.Categories)
	return res
}

// SubmitReconfigure validates the form and replaces the record's fields in
// place, preserving its identity.
func (f *PlantFlow) SubmitReconfigure(deviceID string, in ConfigInput) *Result {
	rec, ok := f.store.Get(deviceID)
	if !ok {
		return abortResult(AbortUnknownDevice)
	}

	normalized := in.normalized()
	if errs := validateConfig(normalized); len(errs) > 0 {
		res := formResult(StepReconfigure, errs)
		res.PlantName = rec.Name
		res.Defaults = &normalized
		res.CategoryOptions = f.categoryOptions(normalized.Categories)
		return res
	}

	updated := recordFromInput(normalized)
	updated.DeviceID = rec.DeviceID
	updated.PlantID = rec.PlantID
	if updated.PlantID == "" {
		updated.PlantID = normalized.ScientificName
	}
	updated.Name = normalized.FriendlyName
	if updated.Name == "" {
		updated.Name = normalized.ScientificName
	}
	updated.EntityPicture = rec.EntityPicture
	updated.PlantBookData = rec.PlantBookData

	if err := f.store.Update(updated); err != nil {
		f.logger.Error("Failed to update plant record", zap.Error(err))
		res := formResult(StepReconfigure, map[string]string{sectionBase: "unknown"})
		res.Defaults = &normalized
		return res
	}

	f.logger.Info("Plant record reconfigured", zap.String("device_id", deviceID))
	return &Result{Kind: KindUpdated, Record: updated}
}

// guardReauth aborts the session when a re-auth flow is already pending for
// the parent credentials.
func (f *PlantFlow) guardReauth() *Result {
	creds, ok := f.store.Credentials()
	if ok && f.scheduler.Pending(creds.ClientID) {
		f.logger.Warn("Aborting plant flow, reauth required for parent entry")
		return abortResult(AbortReauthRequired)
	}
	return nil
}

// triggerReauth schedules a re-auth flow for the parent entry. The scheduler
// de-duplicates, so repeated auth failures never stack sessions.
func (f *PlantFlow) triggerReauth(entryID string) {
	f.scheduler.Schedule(entryID)
}

// recordFromInput copies the validated form values into a record.
func recordFromInput(in ConfigInput) *plant.Record {
	return &plant.Record{
		ScientificName: in.ScientificName,
		CommonName:     in.CommonName,
		FriendlyName:   in.FriendlyName,
		Categories:     in.Categories,
		MinLight:       in.MinLight,
		MaxLight:       in.MaxLight,
		MinTemp:        in.MinTemp,
		MaxTemp:        in.MaxTemp,
		MinHumidity:    in.MinHumidity,
		MaxHumidity:    in.MaxHumidity,
		MinMoisture:    in.MinMoisture,
		MaxMoisture:    in.MaxMoisture,
		MinSoilEC:      in.MinSoilEC,
		MaxSoilEC:      in.MaxSoilEC,
	}
}

// reconfigureDefaults prefers the record's current values, then backfills
// from the retained plant book snapshot.
func reconfigureDefaults(rec *plant.Record) *ConfigInput {
	book := rec.PlantBookData

	pick := func(current *float64, bookKey string) *float64 {
		if current != nil {
			return current
		}
		if v, ok := book[bookKey].(float64); ok {
			f := v
			return &f
		}
		return nil
	}

	friendly := rec.FriendlyName
	if friendly == "" {
		friendly = rec.Name
	}

	return &ConfigInput{
		FriendlyName:   plant.ProperCase(friendly),
		ScientificName: plant.ProperCase(rec.ScientificName),
		CommonName:     plant.ProperCase(rec.CommonName),
		Categories:     plant.ProperCaseAll(rec.Categories),
		MinLight:       pick(rec.MinLight, "min_light_lux"),
		MaxLight:       pick(rec.MaxLight, "max_light_lux"),
		MinTemp:        pick(rec.MinTemp, "min_temp"),
		MaxTemp:        pick(rec.MaxTemp, "max_temp"),
		MinHumidity:    pick(rec.MinHumidity, "min_env_humid"),
		MaxHumidity:    pick(rec.MaxHumidity, "max_env_humid"),
		MinMoisture:    pick(rec.MinMoisture, "min_soil_moist"),
		MaxMoisture:    pick(rec.MaxMoisture, "max_soil_moist"),
		MinSoilEC:      pick(rec.MinSoilEC, "min_soil_ec"),
		MaxSoilEC:      pick(rec.MaxSoilEC, "max_soil_ec"),
	}
}
