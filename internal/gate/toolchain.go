package gate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kstaniek/canforge/internal/codegen"
)

// toolchain describes one detected C compiler's invocation shape.
type toolchain struct {
	name     string
	bin      string
	args     func(src, obj string) []string
	linkArgs func(srcs []string, outPath string) []string
}

func detectToolchain(hint string) (toolchain, error) {
	switch hint {
	case "gcc":
		return gccLike("gcc"), nil
	case "clang":
		return gccLike("clang"), nil
	case "msvc":
		return msvcLike(), nil
	case "auto", "":
		if bin, err := exec.LookPath("cc"); err == nil {
			return gccLike(bin), nil
		}
		if bin, err := exec.LookPath("gcc"); err == nil {
			return gccLike(bin), nil
		}
		if bin, err := exec.LookPath("clang"); err == nil {
			return gccLike(bin), nil
		}
		if bin, err := exec.LookPath("cl.exe"); err == nil {
			tc := msvcLike()
			tc.bin = bin
			return tc, nil
		}
		return toolchain{}, fmt.Errorf("gate: no C toolchain found on PATH")
	default:
		return toolchain{}, fmt.Errorf("gate: unknown toolchain hint %q", hint)
	}
}

func gccLike(bin string) toolchain {
	return toolchain{
		name: "gcc-like",
		bin:  bin,
		args: func(src, obj string) []string {
			return []string{"-c", "-std=c11", "-Wall", "-Wextra", src, "-o", obj}
		},
		linkArgs: func(srcs []string, outPath string) []string {
			args := append([]string{"-std=c11", "-Wall", "-Wextra"}, srcs...)
			return append(args, "-o", outPath)
		},
	}
}

func msvcLike() toolchain {
	return toolchain{
		name: "msvc",
		bin:  "cl.exe",
		args: func(src, obj string) []string {
			return []string{"/c", "/std:c11", src, "/Fo" + obj}
		},
		linkArgs: func(srcs []string, outPath string) []string {
			args := append([]string{"/std:c11"}, srcs...)
			return append(args, "/Fe"+outPath)
		},
	}
}

// checkCompile detects a toolchain, writes art's header/source to a fresh
// scratch directory (the copies under outDir are not compiled), and
// invokes it with a fixed minimal flag set producing a throwaway object,
// under cfg.CompileTimeout. The scratch directory is removed on return.
func checkCompile(ctx context.Context, art codegen.Artifacts, outDir string, cfg Config) error {
	tc, err := detectToolchain(cfg.ToolchainHint)
	if err != nil {
		return &GateError{Kind: CompileFailed, ExitCode: -1, Stderr: err.Error()}
	}

	scratch, err := os.MkdirTemp("", "canforge-gate-*")
	if err != nil {
		return fmt.Errorf("gate: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	headerPath := filepath.Join(scratch, art.HeaderName)
	sourcePath := filepath.Join(scratch, art.SourceName)
	if err := os.WriteFile(headerPath, []byte(art.HeaderSrc), 0o644); err != nil {
		return fmt.Errorf("gate: write scratch header: %w", err)
	}
	if err := os.WriteFile(sourcePath, []byte(art.SourceSrc), 0o644); err != nil {
		return fmt.Errorf("gate: write scratch source: %w", err)
	}

	objPath := filepath.Join(scratch, "protocol.o")
	cctx, cancel := context.WithTimeout(ctx, cfg.CompileTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, tc.bin, tc.args(sourcePath, objPath)...)
	setProcAttr(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cctx.Err() != nil {
		if cmd.Process != nil {
			killProcessGroup(cmd.Process.Pid)
		}
		return &GateError{Kind: CompileFailed, ExitCode: -1, Stderr: fmt.Sprintf("compile timed out after %s", cfg.CompileTimeout)}
	}
	if runErr != nil {
		exitCode := -1
		if ee, ok := runErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return &GateError{Kind: CompileFailed, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return nil
}
