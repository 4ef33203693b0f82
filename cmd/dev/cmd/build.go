package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const (
	buildImage  = "gophertribe/gobuild:1.25-bookworm"
	cliPackage  = "./cmd/twowire"
	infoPackage = "github.com/mklimuk/twowire/pkg/config"
)

type target struct {
	os      string
	arch    string
	version string
}

func (t target) native() bool {
	return t.os == runtime.GOOS && t.arch == runtime.GOARCH
}

func (t target) output() string {
	if t.native() {
		return "dist/twowire"
	}
	return fmt.Sprintf("dist/twowire-%s-%s", t.os, t.arch)
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the twowire cli",
		Long: `Build the twowire cli. The USB adapter support needs cgo, so builds for
another platform run inside a docker image with the cross toolchain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var t target
			var err error
			if t.os, err = cmd.Flags().GetString("os"); err != nil {
				return fmt.Errorf("could not get os flag: %w", err)
			}
			if t.arch, err = cmd.Flags().GetString("arch"); err != nil {
				return fmt.Errorf("could not get arch flag: %w", err)
			}
			if t.version, err = cmd.Flags().GetString("version"); err != nil {
				return fmt.Errorf("could not get version flag: %w", err)
			}
			cross, err := cmd.Flags().GetBool("cross")
			if err != nil {
				return fmt.Errorf("could not get cross flag: %w", err)
			}
			if t.native() || cross {
				return build.GoBuild(t.output(), cliPackage, build.GoBuildOpts{
					Version:       t.version,
					InjectVersion: true,
					ConfigPackage: infoPackage,
					EnableCgo:     true,
					Arch:          t.arch,
					OS:            t.os,
				})
			}
			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			// the container runs this tool again with the cross toolchain in place
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", t.os, t.arch), []string{"build", "--version", t.version, "--os", t.os, "--arch", t.arch, "--cross"}, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   buildImage,
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().Bool("cross", false, "build for os/arch with the local toolchain")
	return cmd
}
