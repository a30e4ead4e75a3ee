// Package client implements the update pipeline that turns a local
// installation at some version label into the server's latest one: fetch
// the index, coalesce every missing version's change log into one plan,
// download the changed files into a staging area, then apply them.
// Grounded on client/src/work.rs::work (the non-GUI update flow).
package client

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/config"
	"github.com/mcpatch-go/mcpatch/internal/filehash"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/mcerror"
	"github.com/mcpatch-go/mcpatch/internal/transport"
)

// stagingDirName is the working directory under BaseDir holding in-flight
// downloads before they are renamed into place.
const stagingDirName = ".mcpatch-temp"

const downloadChunkSize = 32 * 1024

// speedSamplePeriod matches SpeedCalculator::new(1500) in the original.
const speedSamplePeriod = 1500 * time.Millisecond

// Options configures a single pipeline run.
type Options struct {
	Config *config.ClientConfig

	// Network is the fetch layer to read the index, metadata, and file
	// payloads through.
	Network *transport.Network

	// BaseDir is the directory updates are applied under.
	BaseDir string

	// SelfPath and LogFilePath are excluded from every change bucket
	// (spec §4.13 step 9): the running binary and the active log file
	// must never be touched by an update.
	SelfPath    string
	LogFilePath string

	Log *logging.Logger

	// Progress, if set, is called after every downloaded chunk with the
	// running byte total, the plan's total byte count, and the current
	// transfer rate.
	Progress func(downloaded, total uint64, bytesPerSecond uint64)
}

// Result summarizes a completed run.
type Result struct {
	// UpToDate is true when the local version already matched the
	// server's latest and no work was done.
	UpToDate bool

	// PreviousVersion and NewVersion are the version labels before and
	// after the run. Equal when UpToDate.
	PreviousVersion string
	NewVersion      string

	// Changelog concatenates every applied version's log text, in
	// version order, in the "++++++++++ label ++++++++++\n{logs}" form
	// the original CLI prints.
	Changelog string
}

// pendingUpdate is a coalesced UpdateFile change, still carrying which
// container ("package") and version label it was recorded against, since
// both are needed to fetch its payload and to report progress.
type pendingUpdate struct {
	path     string
	hash     string
	length   uint64
	modified int64
	offset   uint64
	pkg      string
	label    string
}

type pendingMove struct {
	from, to string
}

type plan struct {
	createFolders []string
	updateFiles   []pendingUpdate
	deleteFolders []string
	deleteFiles   []string
	moveFiles     []pendingMove
}

// Run executes the full update pipeline described by spec §4.13.
func Run(opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logging.Root
	}

	versionFilePath := resolvePath(opts.BaseDir, opts.Config.VersionFilePath)

	previous, err := readVersionLabel(versionFilePath)
	if err != nil {
		return nil, err
	}

	indexText, err := opts.Network.RequestText("index.json", transport.Whole, transport.Whole, "index file")
	if err != nil {
		return nil, err
	}

	serverIndex, err := archive.ParseIndexFile([]byte(indexText))
	if err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindConfigInvalid, "parsing server index")
	}

	if serverIndex.Len() == 0 {
		return nil, mcerror.New(mcerror.KindNoServerVersions, "the server has not published any version yet")
	}

	if previous != "" && !serverIndex.Contains(previous) {
		return nil, mcerror.New(mcerror.KindUnknownLocalVersion, "local version %q is not present in the server's index", previous)
	}

	latest := serverIndex.At(serverIndex.Len() - 1)

	if latest.Label == previous {
		return &Result{UpToDate: true, PreviousVersion: previous, NewVersion: previous}, nil
	}

	missing := missingVersions(serverIndex, previous)

	log.Debugf("missing %d version(s), latest is %s", len(missing), latest.Label)

	metas, err := fetchMetadatas(opts.Network, missing, log)
	if err != nil {
		return nil, err
	}

	p := coalesce(metas)
	applySafetyFilters(&p, opts.BaseDir, opts.SelfPath, opts.LogFilePath)

	if err := skipSatisfiedUpdates(&p, opts.BaseDir); err != nil {
		return nil, err
	}

	stagingDir := filepath.Join(opts.BaseDir, stagingDirName)

	if err := downloadToStaging(opts, stagingDir, p.updateFiles, log); err != nil {
		return nil, err
	}

	if err := applyPlan(opts.BaseDir, stagingDir, p, log); err != nil {
		return nil, err
	}

	if err := os.WriteFile(versionFilePath, []byte(latest.Label), 0o644); err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindIO, "writing version label %q", versionFilePath)
	}

	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindIO, "removing staging directory %q", stagingDir)
	}

	return &Result{
		UpToDate:        false,
		PreviousVersion: previous,
		NewVersion:      latest.Label,
		Changelog:       changelogOf(metas),
	}, nil
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func readVersionLabel(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", mcerror.Wrap(err, mcerror.KindIO, "reading version label %q", path)
	}
	return strings.TrimSpace(string(data)), nil
}

// missingVersions returns every server version after previous, or every
// version when previous is empty (never-updated install).
func missingVersions(idx *archive.IndexFile, previous string) []archive.VersionIndex {
	all := idx.All()
	if previous == "" {
		return all
	}

	at := idx.IndexOf(previous)
	if at < 0 {
		return all
	}
	return all[at+1:]
}

// fullVersionMeta pairs a parsed VersionMeta with the container filename it
// was retrieved from, needed later to address its UpdateFile payloads.
type fullVersionMeta struct {
	pkg  string
	meta archive.VersionMeta
}

// fetchMetadatas downloads each missing version's metadata range and
// flattens the results, deduplicating by label across overlapping groups.
func fetchMetadatas(network *transport.Network, missing []archive.VersionIndex, log *logging.Logger) ([]fullVersionMeta, error) {
	var out []fullVersionMeta
	seen := make(map[string]bool)

	for _, ver := range missing {
		text, err := network.RequestText(ver.Filename, ver.Offset, ver.Offset+ver.Length, "metadata of "+ver.Label)
		if err != nil {
			return nil, err
		}

		group, err := archive.ParseMetaGroup([]byte(text))
		if err != nil {
			return nil, mcerror.Wrap(err, mcerror.KindConfigInvalid, "parsing metadata for version %q", ver.Label)
		}

		for _, meta := range group {
			if seen[meta.Label] {
				continue
			}
			seen[meta.Label] = true
			out = append(out, fullVersionMeta{pkg: ver.Filename, meta: meta})
		}
	}

	log.Debugf("collected %d version metadata group(s)", len(out))
	return out, nil
}

// coalesce merges every collected version's changes into one plan,
// following spec §4.13 step 8's precedence rules exactly.
func coalesce(metas []fullVersionMeta) plan {
	var p plan

	removeString := func(list []string, target string) []string {
		for i, s := range list {
			if s == target {
				return append(list[:i], list[i+1:]...)
			}
		}
		return list
	}
	removeUpdate := func(path string) (pendingUpdate, bool) {
		for i, u := range p.updateFiles {
			if u.path == path {
				p.updateFiles = append(p.updateFiles[:i], p.updateFiles[i+1:]...)
				return u, true
			}
		}
		return pendingUpdate{}, false
	}

	for _, fm := range metas {
		for _, change := range fm.meta.Changes {
			switch change.Operation {
			case archive.OpCreateFolder:
				before := len(p.deleteFolders)
				p.deleteFolders = removeString(p.deleteFolders, change.Path)
				if len(p.deleteFolders) == before {
					p.createFolders = append(p.createFolders, change.Path)
				}

			case archive.OpDeleteFolder:
				before := len(p.createFolders)
				p.createFolders = removeString(p.createFolders, change.Path)
				if len(p.createFolders) == before {
					p.deleteFolders = append(p.deleteFolders, change.Path)
				}

			case archive.OpUpdateFile:
				removeUpdate(change.Path)
				p.deleteFiles = removeString(p.deleteFiles, change.Path)
				p.updateFiles = append(p.updateFiles, pendingUpdate{
					path:     change.Path,
					hash:     change.Hash,
					length:   change.Len,
					modified: change.Modified,
					offset:   change.Offset,
					pkg:      fm.pkg,
					label:    fm.meta.Label,
				})

			case archive.OpDeleteFile:
				removeUpdate(change.Path)
				p.deleteFiles = append(p.deleteFiles, change.Path)

			case archive.OpMoveFile:
				if u, ok := removeUpdate(change.From); ok {
					u.path = change.To
					p.updateFiles = append(p.updateFiles, u)
				} else {
					p.moveFiles = append(p.moveFiles, pendingMove{from: change.From, to: change.To})
				}
			}
		}
	}

	return p
}

// applySafetyFilters drops any change touching selfPath or logFilePath,
// both compared as resolved absolute paths (spec §4.13 step 9).
func applySafetyFilters(p *plan, baseDir, selfPath, logFilePath string) {
	protect := func(candidate string) bool {
		if candidate == "" {
			return false
		}
		resolved := resolvePath(baseDir, candidate)
		if abs, err := filepath.Abs(resolved); err == nil {
			resolved = abs
		}
		return (selfPath != "" && resolved == selfPath) || (logFilePath != "" && resolved == logFilePath)
	}

	p.createFolders = filterStrings(p.createFolders, func(s string) bool { return !protect(s) })
	p.deleteFolders = filterStrings(p.deleteFolders, func(s string) bool { return !protect(s) })
	p.deleteFiles = filterStrings(p.deleteFiles, func(s string) bool { return !protect(s) })

	updates := p.updateFiles[:0]
	for _, u := range p.updateFiles {
		if !protect(u.path) {
			updates = append(updates, u)
		}
	}
	p.updateFiles = updates

	moves := p.moveFiles[:0]
	for _, m := range p.moveFiles {
		if !protect(m.from) && !protect(m.to) {
			moves = append(moves, m)
		}
	}
	p.moveFiles = moves
}

func filterStrings(list []string, keep func(string) bool) []string {
	out := list[:0]
	for _, s := range list {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// skipSatisfiedUpdates drops any pending update whose target already
// matches the recorded (modified, length) pair or content hash, and any
// whose target is a directory (never clobbered into a file).
func skipSatisfiedUpdates(p *plan, baseDir string) error {
	var kept []pendingUpdate

	for _, u := range p.updateFiles {
		target := filepath.Join(baseDir, u.path)

		info, err := os.Stat(target)
		if err != nil {
			if os.IsNotExist(err) {
				kept = append(kept, u)
				continue
			}
			return mcerror.Wrap(err, mcerror.KindIO, "stat %q", target)
		}

		if info.IsDir() {
			continue
		}

		if info.ModTime().Unix() == u.modified && uint64(info.Size()) == u.length {
			continue
		}

		satisfied, err := fileHashMatches(target, u.hash)
		if err != nil {
			return err
		}
		if satisfied {
			continue
		}

		kept = append(kept, u)
	}

	p.updateFiles = kept
	return nil
}

func fileHashMatches(path, want string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, mcerror.Wrap(err, mcerror.KindIO, "opening %q", path)
	}
	defer f.Close()

	got, err := filehash.Hash(f)
	if err != nil {
		return false, mcerror.Wrap(err, mcerror.KindIO, "hashing %q", path)
	}
	return got == want, nil
}

// downloadToStaging fetches every pending update's payload into
// {stagingDir}/{path}.temp, retrying transport errors up to
// opts.Config.HTTPRetries times and verifying the content hash before
// moving on, per spec §4.13 step 11.
func downloadToStaging(opts Options, stagingDir string, updates []pendingUpdate, log *logging.Logger) error {
	if len(updates) == 0 {
		return nil
	}

	var total uint64
	for _, u := range updates {
		total += u.length
	}

	var downloaded uint64
	speed := NewSpeedSampler(speedSamplePeriod)

	for _, u := range updates {
		tempPath := filepath.Join(stagingDir, u.path+".temp")
		if err := os.MkdirAll(filepath.Dir(tempPath), 0o755); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "creating staging directory for %q", u.path)
		}

		if err := downloadOne(opts, tempPath, u, &downloaded, total, speed, log); err != nil {
			return err
		}
	}

	return nil
}

func downloadOne(opts Options, tempPath string, u pendingUpdate, downloaded *uint64, total uint64, speed *SpeedSampler, log *logging.Logger) error {
	retries := int(opts.Config.HTTPRetries)

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "opening staging file %q", tempPath)
	}
	defer file.Close()

	if u.length == 0 {
		return verifyStagedHash(file, tempPath, u.hash)
	}

	desc := u.path + " in " + u.label

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "rewinding staging file %q", tempPath)
		}
		if err := file.Truncate(0); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "truncating staging file %q", tempPath)
		}

		_, body, err := opts.Network.RequestFile(u.pkg, u.offset, u.offset+u.length, desc)
		if err != nil {
			return err
		}

		_, copyErr := copyWithProgress(file, body, downloaded, total, speed, opts.Progress)
		body.Close()

		if copyErr == nil {
			lastErr = nil
			break
		}

		lastErr = copyErr
		if attempt != retries {
			log.Warnf("download of %s failed (%v), retrying", desc, copyErr)
		}
	}

	if lastErr != nil {
		return mcerror.Wrap(lastErr, mcerror.KindNetworkTransport, "downloading %s", desc)
	}

	return verifyStagedHash(file, tempPath, u.hash)
}

func copyWithProgress(dst *os.File, src io.Reader, downloaded *uint64, total uint64, speed *SpeedSampler, progress func(uint64, uint64, uint64)) (int64, error) {
	buf := make([]byte, downloadChunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			*downloaded += uint64(n)
			speed.Feed(n)
			if progress != nil {
				progress(*downloaded, total, speed.BytesPerSecond())
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			*downloaded -= uint64(written)
			return written, readErr
		}
	}
}

func verifyStagedHash(file *os.File, tempPath, want string) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "rewinding staging file %q", tempPath)
	}

	got, err := filehash.Hash(file)
	if err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "hashing staging file %q", tempPath)
	}
	if got != want {
		return mcerror.New(mcerror.KindHashMismatch, "staged file %q hash %s does not match declared %s", tempPath, got, want)
	}
	return nil
}

// applyPlan performs the fixed-order apply step (spec §4.13 step 12):
// create folders, then moves, then delete files, then delete folders, then
// rename staged files over their targets.
func applyPlan(baseDir, stagingDir string, p plan, log *logging.Logger) error {
	for _, path := range p.createFolders {
		target := filepath.Join(baseDir, path)
		log.Debugf("create directory: %s", path)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "creating directory %q", target)
		}
	}

	for _, m := range p.moveFiles {
		from := filepath.Join(baseDir, m.from)
		to := filepath.Join(baseDir, m.to)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		log.Debugf("move file %s => %s", m.from, m.to)
		if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "creating directory for move target %q", to)
		}
		if err := os.Rename(from, to); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "moving %q to %q", from, to)
		}
	}

	for _, path := range p.deleteFiles {
		target := filepath.Join(baseDir, path)
		if _, err := os.Stat(target); err != nil {
			continue
		}
		log.Debugf("delete file: %s", path)
		if err := os.Remove(target); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "deleting file %q", target)
		}
	}

	for _, path := range p.deleteFolders {
		target := filepath.Join(baseDir, path)
		log.Debugf("delete directory: %s", path)
		if err := os.RemoveAll(target); err != nil {
			log.Warnf("could not delete directory %q: %v", target, err)
		}
	}

	for _, u := range p.updateFiles {
		tempPath := filepath.Join(stagingDir, u.path+".temp")
		target := filepath.Join(baseDir, u.path)
		log.Debugf("apply staged file: %s => %s", u.path+".temp", u.path)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "creating directory for %q", target)
		}
		if err := os.Rename(tempPath, target); err != nil {
			return mcerror.Wrap(err, mcerror.KindIO, "applying staged file %q", tempPath)
		}
	}

	return nil
}

func changelogOf(metas []fullVersionMeta) string {
	var b strings.Builder
	for _, fm := range metas {
		b.WriteString("++++++++++ ")
		b.WriteString(fm.meta.Label)
		b.WriteString(" ++++++++++\n")
		b.WriteString(fm.meta.Logs)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}
