// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compositor defines the contract between the render thread and the
// platform compositor backends.
//
// A Compositor exposes a surface/tile protocol: surfaces are virtual
// compositing units registered once with CreateSurface and subdivided into a
// grid of tiles. Each tile is drawn either by binding it as a render target
// (GPU backends) or by mapping its pixels into CPU memory (software
// backends), and AddSurface places a surface into the frame currently being
// composited between BeginFrame and EndFrame.
//
// # Backend Selection
//
// Backends register a factory with a priority. Create walks the available
// backends from highest to lowest priority and returns the first one whose
// factory succeeds, so a platform that lacks a driver falls back to the next
// candidate:
//
//	platform-accelerated (100) > EGL (75) > native layers (50) > OpenGL (25) > software (0)
//
// The software backend is always registered and always succeeds.
//
//	c, err := compositor.Create(widget, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Deinit()
//
// # Protocol
//
// Every compositor returned by Create is wrapped by Checked, which panics on
// protocol violations: tile operations without a matching CreateTile,
// DestroySurface while tiles remain, Bind and MapTile on the same tile, and
// any call after Deinit. These are programming errors, not recoverable
// conditions.
package compositor
