/*
Renders a scene file with the deferred renderer until the window is closed.

	deferred <scene.xml>

The optional config.toml in the working directory overrides the defaults.
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/deferred/engine"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/platform"
	"github.com/spaghettifunk/deferred/engine/renderer/vulkan"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <scene.xml>\n", os.Args[0])
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		core.LogFatal("%s", err.Error())
	}
}

func run(scenePath string) error {
	config, err := engine.LoadConfig("config.toml")
	if err != nil {
		return err
	}
	core.SetLogLevel(config.Log.Level)

	bus := core.NewEventBus()
	input := core.NewInput(bus)

	window, err := platform.NewWindow(platform.WindowConfig{
		Title:  config.Window.Title,
		X:      int(config.Window.X),
		Y:      int(config.Window.Y),
		Width:  config.Window.Width,
		Height: config.Window.Height,
	}, bus, input)
	if err != nil {
		return err
	}
	defer window.Destroy()

	backend, err := vulkan.NewBackend(vulkan.BackendConfig{
		ApplicationName: config.Window.Title,
		Validation:      config.Renderer.Validation,
	}, window)
	if err != nil {
		return err
	}
	defer backend.Shutdown()

	width, height := window.FramebufferSize()
	swapchain, err := vulkan.NewSwapchain(backend, width, height)
	if err != nil {
		return err
	}
	defer swapchain.Destroy()

	e, err := engine.New(config, engine.Platform{
		Window:  window,
		Surface: swapchain,
		Backend: backend,
		Bus:     bus,
		Input:   input,
	})
	if err != nil {
		return err
	}
	// the swapchain and the backend are destroyed after the engine
	defer func() {
		if err := e.Shutdown(); err != nil {
			core.LogError("shutdown: %s", err.Error())
		}
	}()

	if err := e.Initialize(); err != nil {
		return err
	}
	if err := e.LoadScene(scenePath); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			e.Stop()
		}
	}()

	return e.Run()
}
