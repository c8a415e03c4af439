package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/process"
	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/locserver"
	"go.dedis.ch/locsim/log"
	"go.dedis.ch/locsim/model"
)

// Timeouts for the child-process lifecycle.
const (
	StartReadinessTimeout = 60 * time.Second
	LOCInitTimeout        = 45 * time.Second
	StopTimeout           = 20 * time.Second
)

// Paths locates the on-disk layout the supervisor reads and writes.
type Paths struct {
	BinDir       string // bin/ProfileServer, bin/ProximityServer templates
	ImagesDir    string
	InstancesDir string
}

// readinessMarker is the stdout substring that signals a child process is
// ready for traffic, per kind.
func readinessMarker(kind model.ServerKind) string {
	if kind == model.KindProximity {
		return "Location initialization completed"
	}
	return "ENTER"
}

func instancePrefix(kind model.ServerKind) string {
	if kind == model.KindProximity {
		return "Px-"
	}
	return "Ps-"
}

// Supervisor owns the lifecycle of one managed server's child process:
// instance-directory setup, config generation, launch, readiness
// detection, and shutdown.
type Supervisor struct {
	Server *model.Server
	LOC    *locserver.LOCServer
	Paths  Paths

	InstanceDir string
	BinaryName  string // executable name inside the instance dir

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	process *Process
	exited  chan struct{}
}

// New constructs a Supervisor for server, wired to its LOC server.
func New(server *model.Server, loc *locserver.LOCServer, paths Paths, binaryName string) *Supervisor {
	dir := filepath.Join(paths.InstancesDir, instancePrefix(server.Kind)+string(server.Name))
	return &Supervisor{
		Server:      server,
		LOC:         loc,
		Paths:       paths,
		InstanceDir: dir,
		BinaryName:  binaryName,
		process:     &Process{},
	}
}

// Start sets up the instance directory, generates the configuration file,
// launches the child process, and waits for readiness then LOC
// registration.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.prepareInstanceDir(); err != nil {
		return err
	}
	if err := s.writeConfigFile(); err != nil {
		return err
	}

	binPath := filepath.Join(s.InstanceDir, s.BinaryName)
	cmd := exec.Command(binPath)
	cmd.Dir = s.InstanceDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return xerrors.Errorf("%s: stdin pipe: %v", s.Server.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return xerrors.Errorf("%s: stdout pipe: %v", s.Server.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return xerrors.Errorf("%s: stderr pipe: %v", s.Server.Name, err)
	}

	ready := make(chan struct{})
	var readyOnce sync.Once

	locReady := make(chan struct{})
	var locReadyOnce sync.Once
	s.Server.Lock()
	s.Server.OnInitialized(s.Server.Name, func(*model.Server) {
		locReadyOnce.Do(func() { close(locReady) })
	})
	s.Server.Unlock()

	marker := readinessMarker(s.Server.Kind)
	onReady := func(line string) {
		if strings.Contains(line, marker) {
			readyOnce.Do(func() { close(ready) })
			if s.Server.Kind == model.KindProximity {
				s.LOC.MarkReady()
			}
		}
	}

	if err := cmd.Start(); err != nil {
		return &SubprocessError{Server: string(s.Server.Name), Reason: xerrors.Errorf("starting child: %v", err).Error()}
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.exited = make(chan struct{})
	s.mu.Unlock()
	s.process.setPid(cmd.Process.Pid)
	s.Server.Process = s.process

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pumpLines(&wg, stdout, onReady)
	go s.pumpLines(&wg, stderr, onReady)
	go func() {
		wg.Wait()
	}()
	go func() {
		cmd.Wait()
		s.process.setExited()
		close(s.exited)
	}()

	select {
	case <-ready:
	case <-time.After(StartReadinessTimeout):
		return &SubprocessError{Server: string(s.Server.Name), Reason: fmt.Sprintf("readiness marker %q not seen within %s", marker, StartReadinessTimeout)}
	case <-s.exited:
		return &SubprocessError{Server: string(s.Server.Name), Reason: "child exited before readiness"}
	}

	select {
	case <-locReady:
	case <-time.After(LOCInitTimeout):
		return &SubprocessError{Server: string(s.Server.Name), Reason: fmt.Sprintf("LOC registration not completed within %s", LOCInitTimeout)}
	case <-s.exited:
		return &SubprocessError{Server: string(s.Server.Name), Reason: "child exited before LOC registration"}
	}

	log.Lvl2(s.Server.Name, " ready")
	return nil
}

func (s *Supervisor) pumpLines(wg *sync.WaitGroup, r io.Reader, onLine func(string)) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		onLine(sc.Text())
	}
}

// Stop writes a newline to the child's stdin and waits up to StopTimeout
// for a clean exit, forcibly terminating it otherwise.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	stdin := s.stdin
	exited := s.exited
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if stdin != nil {
		io.WriteString(stdin, "\n")
	}

	select {
	case <-exited:
		s.reportLogCounts()
		return nil
	case <-time.After(StopTimeout):
	}

	s.logForcedKillDiagnostics()
	s.process.signal(syscall.SIGKILL)
	<-exited
	s.reportLogCounts()
	return nil
}

// reportLogCounts scans the instance's log files for error and warning
// markers after the child has exited and surfaces the counts.
func (s *Supervisor) reportLogCounts() {
	logsDir := filepath.Join(s.InstanceDir, "Logs")
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		errs, warns, err := ScanLogCounts(filepath.Join(logsDir, e.Name()))
		if err != nil {
			log.Warnf("%s: scanning %s: %v", s.Server.Name, e.Name(), err)
			continue
		}
		if errs > 0 || warns > 0 {
			log.Warnf("%s: %s: %d errors, %d warnings", s.Server.Name, e.Name(), errs, warns)
		}
	}
}

// IsRunning reports whether a child process is currently tracked as alive,
// used by the snapshot engine to record each server's running flag.
func (s *Supervisor) IsRunning() bool {
	return s.process.Alive()
}

// Shutdown stops the LOC server then the child process.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if s.LOC != nil {
		s.LOC.Close()
	}
	return s.Stop(ctx)
}

// logForcedKillDiagnostics logs CPU/RSS stats for a child about to be
// force-killed, to help diagnose a runaway child.
func (s *Supervisor) logForcedKillDiagnostics() {
	pid := int32(s.process.Pid())
	proc, err := gopsutilprocess.NewProcess(pid)
	if err != nil {
		log.Warnf("%s: forced kill, no process stats: %v", s.Server.Name, err)
		return
	}
	cpu, _ := proc.CPUPercent()
	mem, _ := proc.MemoryInfo()
	rss := uint64(0)
	if mem != nil {
		rss = mem.RSS
	}
	log.Warnf("%s: forced kill after stop timeout, cpu=%.1f%% rss=%dKB", s.Server.Name, cpu, rss/1024)
}

func (s *Supervisor) prepareInstanceDir() error {
	if err := os.MkdirAll(s.InstanceDir, 0o755); err != nil {
		return xerrors.Errorf("%s: creating instance dir: %v", s.Server.Name, err)
	}
	if err := os.MkdirAll(filepath.Join(s.InstanceDir, "Logs"), 0o755); err != nil {
		return xerrors.Errorf("%s: creating logs dir: %v", s.Server.Name, err)
	}
	templateDir := filepath.Join(s.Paths.BinDir, templateName(s.Server.Kind))
	return copyDir(templateDir, s.InstanceDir)
}

func templateName(kind model.ServerKind) string {
	if kind == model.KindProximity {
		return "ProximityServer"
	}
	return "ProfileServer"
}

func (s *Supervisor) writeConfigFile() error {
	path := filepath.Join(s.InstanceDir, templateName(s.Server.Kind)+".conf")
	external := "127.0.0.1"
	if s.Server.Kind == model.KindProximity {
		cfg := ProximityConfig{
			TestMode:                    true,
			ExternalServerAddress:       external,
			BindToInterface:             "0.0.0.0",
			PrimaryInterfacePort:        s.Server.Port(model.PortOffsetPrimary),
			NeighborInterfacePort:       s.Server.Port(model.PortOffsetNeighbor),
			ClientPort:                  s.Server.Port(model.PortOffsetClientBase),
			CustomerClientPort:          s.Server.Port(model.PortOffsetClientCustomer),
			TLSServerCertificate:        filepath.Join(s.InstanceDir, "server.crt"),
			ImageDataFolder:             s.Paths.ImagesDir,
			TmpDataFolder:               filepath.Join(s.InstanceDir, "tmp"),
			DBFileName:                  filepath.Join(s.InstanceDir, "proximity.db"),
			MaxActivities:               model.MaxActivities,
			NeighborhoodInitParallelism: 4,
			LOCPort:                     s.Server.Port(model.PortOffsetLOC),
			NeighborExpirationTime:      300,
			MaxNeighborhoodSize:         64,
			MaxFollowerServersCount:     16,
			FollowerRefreshTime:         60,
			CanAPIPort:                  s.Server.Port(model.PortOffsetCanAPI),
		}
		return writeConfig(path, cfg)
	}
	cfg := ProfileConfig{
		TestMode:                    true,
		ExternalServerAddress:       external,
		BindToInterface:             "0.0.0.0",
		PrimaryInterfacePort:        s.Server.Port(model.PortOffsetPrimary),
		ServerNeighborInterfacePort: s.Server.Port(model.PortOffsetNeighbor),
		NonCustomerClientPort:       s.Server.Port(model.PortOffsetClientBase),
		CustomerClientPort:          s.Server.Port(model.PortOffsetClientCustomer),
		TLSServerCertificate:        filepath.Join(s.InstanceDir, "server.crt"),
		ImageDataFolder:             s.Paths.ImagesDir,
		TmpDataFolder:               filepath.Join(s.InstanceDir, "tmp"),
		DBFileName:                  filepath.Join(s.InstanceDir, "profile.db"),
		MaxHostedIdentities:         model.MaxIdentities,
		MaxIdentityRelations:        256,
		NeighborhoodInitParallelism: 4,
		LOCPort:                     s.Server.Port(model.PortOffsetLOC),
		NeighborProfilesExpiration:  300,
		MaxNeighborhoodSize:         64,
		MaxFollowerServersCount:     16,
		FollowerRefreshTime:         60,
		CanAPIPort:                  s.Server.Port(model.PortOffsetCanAPI),
	}
	return writeConfig(path, cfg)
}

// copyDir recursively copies src into dst, creating dst if needed.
func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return xerrors.Errorf("stat template dir %s: %v", src, err)
	}
	if !info.IsDir() {
		return xerrors.Errorf("%s is not a directory", src)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return xerrors.Errorf("reading template dir %s: %v", src, err)
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return err
			}
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return xerrors.Errorf("opening %s: %v", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return xerrors.Errorf("creating %s: %v", dst, err)
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
