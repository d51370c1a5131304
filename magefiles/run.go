//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and renders SCENE, or the sample scene when unset.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	scene := os.Getenv("SCENE")
	if scene == "" {
		scene = "assets/scenes/sample.xml"
	}
	fmt.Printf("Rendering %s...\n", scene)
	if _, err := executeCmd("go", withArgs("run", ".", scene), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests with the race detector.
func (Run) Tests() error {
	// the race detector needs cgo
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
