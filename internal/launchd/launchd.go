package launchd

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultLabel           = "com.fbpages.pipeline"
	DefaultIntervalMinutes = 24 * 60
)

var ErrUnsupported = errors.New("launchd is only available on macOS")

// InstallOptions describes the agent that runs the pipeline on a schedule.
type InstallOptions struct {
	Label            string
	IntervalMinutes  int
	ProgramPath      string   // absolute path to the fbpages binary
	ProgramArgs      []string // args after ProgramPath
	WorkingDirectory string
	Env              map[string]string
	StdOutPath       string
	StdErrPath       string
	PlistPath        string // optional custom plist path
}

func (o *InstallOptions) applyDefaults() {
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	if o.IntervalMinutes <= 0 {
		o.IntervalMinutes = DefaultIntervalMinutes
	}
	if len(o.ProgramArgs) == 0 {
		o.ProgramArgs = []string{"pipeline"}
	}
	if o.StdOutPath == "" || o.StdErrPath == "" {
		def := DefaultLogPath()
		if o.StdOutPath == "" {
			o.StdOutPath = def
		}
		if o.StdErrPath == "" {
			o.StdErrPath = def
		}
	}
}

// DefaultLogPath is ~/Library/Logs/fbpages/pipeline.log.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "fbpages-pipeline.log")
	}
	return filepath.Join(home, "Library", "Logs", "fbpages", "pipeline.log")
}

func DefaultAgentPath(label string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), nil
}

type plistWriter struct {
	buf bytes.Buffer
}

func (w *plistWriter) key(k string) {
	fmt.Fprintf(&w.buf, "    <key>%s</key>\n", escape(k))
}

func (w *plistWriter) str(indent, v string) {
	fmt.Fprintf(&w.buf, "%s<string>%s</string>\n", indent, escape(v))
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// BuildPlist renders a launchd agent running the program every
// IntervalMinutes. The run is one-shot, so the agent has no KeepAlive.
func BuildPlist(opt InstallOptions) ([]byte, error) {
	opt.applyDefaults()
	if opt.ProgramPath == "" {
		return nil, errors.New("program path required")
	}

	w := &plistWriter{}
	w.buf.WriteString(xml.Header)
	w.buf.WriteString("<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n")
	w.buf.WriteString("<plist version=\"1.0\">\n  <dict>\n")

	w.key("Label")
	w.str("    ", opt.Label)

	w.key("ProgramArguments")
	w.buf.WriteString("    <array>\n")
	for _, a := range append([]string{opt.ProgramPath}, opt.ProgramArgs...) {
		w.str("      ", a)
	}
	w.buf.WriteString("    </array>\n")

	if opt.WorkingDirectory != "" {
		w.key("WorkingDirectory")
		w.str("    ", opt.WorkingDirectory)
	}

	if len(opt.Env) > 0 {
		keys := make([]string, 0, len(opt.Env))
		for k := range opt.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.key("EnvironmentVariables")
		w.buf.WriteString("    <dict>\n")
		for _, k := range keys {
			fmt.Fprintf(&w.buf, "      <key>%s</key>\n", escape(k))
			w.str("      ", opt.Env[k])
		}
		w.buf.WriteString("    </dict>\n")
	}

	w.key("StartInterval")
	fmt.Fprintf(&w.buf, "    <integer>%d</integer>\n", opt.IntervalMinutes*60)
	w.key("RunAtLoad")
	w.buf.WriteString("    <false/>\n")

	w.key("StandardOutPath")
	w.str("    ", opt.StdOutPath)
	w.key("StandardErrorPath")
	w.str("    ", opt.StdErrPath)

	w.buf.WriteString("  </dict>\n</plist>\n")
	return w.buf.Bytes(), nil
}

// Install writes the plist and loads it via launchctl.
func Install(opt InstallOptions) (string, error) {
	if runtime.GOOS != "darwin" {
		return "", ErrUnsupported
	}
	opt.applyDefaults()
	plistPath := opt.PlistPath
	if strings.TrimSpace(plistPath) == "" {
		var err error
		if plistPath, err = DefaultAgentPath(opt.Label); err != nil {
			return "", err
		}
	}
	data, err := BuildPlist(opt)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return "", err
	}
	_ = os.MkdirAll(filepath.Dir(opt.StdOutPath), 0o755)
	_ = os.MkdirAll(filepath.Dir(opt.StdErrPath), 0o755)
	if err := os.WriteFile(plistPath, data, 0o644); err != nil {
		return "", err
	}

	lctl := launchctlPath()
	if lctl == "" {
		return plistPath, errors.New("launchctl not found in /bin, /usr/bin, or PATH")
	}
	domain := fmt.Sprintf("gui/%d", os.Getuid())
	// a previous version of the agent must be unloaded before bootstrap
	_ = exec.Command(lctl, "bootout", domain+"/"+opt.Label).Run()
	if err := exec.Command(lctl, "bootstrap", domain, plistPath).Run(); err != nil {
		if err2 := exec.Command(lctl, "load", "-w", plistPath).Run(); err2 != nil {
			return plistPath, fmt.Errorf("launchctl bootstrap/load failed: %v / %v", err, err2)
		}
	} else {
		_ = exec.Command(lctl, "enable", domain+"/"+opt.Label).Run()
	}
	return plistPath, nil
}

// Uninstall unloads and removes the plist.
func Uninstall(label string, plistPath string) error {
	if runtime.GOOS != "darwin" {
		return ErrUnsupported
	}
	if label == "" {
		label = DefaultLabel
	}
	if strings.TrimSpace(plistPath) == "" {
		var err error
		if plistPath, err = DefaultAgentPath(label); err != nil {
			return err
		}
	}
	lctl := launchctlPath()
	if lctl == "" {
		return errors.New("launchctl not found")
	}
	domain := fmt.Sprintf("gui/%d", os.Getuid())
	if err := exec.Command(lctl, "bootout", domain, plistPath).Run(); err != nil {
		_ = exec.Command(lctl, "unload", "-w", plistPath).Run()
	}
	if err := os.Remove(plistPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Status returns whether the agent is loaded and a short human string.
func Status(label string) (bool, string) {
	if runtime.GOOS != "darwin" {
		return false, "unsupported"
	}
	if label == "" {
		label = DefaultLabel
	}
	lctl := launchctlPath()
	if lctl == "" {
		return false, "launchctl not found"
	}
	out, err := exec.Command(lctl, "print", fmt.Sprintf("gui/%d/%s", os.Getuid(), label)).CombinedOutput()
	if err != nil {
		return false, "not loaded"
	}
	state := "loaded"
	for _, ln := range strings.Split(string(out), "\n") {
		if strings.Contains(ln, "state = ") {
			state = strings.TrimSpace(ln)
			break
		}
	}
	return true, state
}

func launchctlPath() string {
	for _, c := range []string{"/bin/launchctl", "/usr/bin/launchctl"} {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	if p, err := exec.LookPath("launchctl"); err == nil {
		return p
	}
	return ""
}

// IntervalMinutes reads StartInterval back from an installed plist.
func IntervalMinutes(plistPath string) (int, error) {
	b, err := os.ReadFile(plistPath)
	if err != nil {
		return 0, err
	}
	s := string(b)
	i := strings.Index(s, "<key>StartInterval</key>")
	if i < 0 {
		return 0, errors.New("StartInterval not found")
	}
	sub := s[i:]
	start := strings.Index(sub, "<integer>")
	end := strings.Index(sub, "</integer>")
	if start < 0 || end <= start+len("<integer>") {
		return 0, errors.New("invalid integer tag")
	}
	secs, err := strconv.Atoi(strings.TrimSpace(sub[start+len("<integer>") : end]))
	if err != nil {
		return 0, err
	}
	return secs / 60, nil
}
