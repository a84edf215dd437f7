package frameworks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestDetectorFromSource(t *testing.T) {
	d := NewDetector(zaptest.NewLogger(t))
	d.ScanSource([]byte(`
const express = require('express');
const app = express();
app.use(bodyParser.json());
app.get('/', (req, res) => res.send('ok'));
`))

	got := d.Detected()
	assert.Equal(t, []string{Express}, got)
}

func TestDetectorBelowThreshold(t *testing.T) {
	d := NewDetector(zaptest.NewLogger(t))
	d.ScanSource([]byte(`app.use(helmet());`))
	assert.Empty(t, d.Detected(), "a single weak signal is not a detection")
}

func TestDetectorManifestDominates(t *testing.T) {
	d := NewDetector(zaptest.NewLogger(t))
	d.ScanManifest([]byte(`{
  "dependencies": {
    "express": "^4.18.0",
    "react": "^18.2.0"
  }
}`))
	d.ScanSource([]byte(`import { useState } from 'react';`))

	got := d.Detected()
	assert.Equal(t, []string{React, Express}, got,
		"react outranks express on accumulated evidence")
}

func TestDetectorOrderingTies(t *testing.T) {
	d := NewDetector(zaptest.NewLogger(t))
	d.ScanManifest([]byte(`{"dependencies": {"koa": "2", "fastify": "4"}}`))
	assert.Equal(t, []string{Fastify, Koa}, d.Detected(),
		"equal scores order alphabetically")
}

func TestDetectorAccumulatesAcrossFiles(t *testing.T) {
	d := NewDetector(zaptest.NewLogger(t))
	d.ScanSource([]byte(`@Controller('users')`))
	assert.Equal(t, []string{NestJS}, d.Detected())

	d.ScanSource([]byte(`import { Injectable } from '@nestjs/common';`))
	got := d.Detected()
	assert.Equal(t, []string{NestJS}, got)
}

func TestDetectorDecoratorSignals(t *testing.T) {
	d := NewDetector(zaptest.NewLogger(t))
	d.ScanSource([]byte(`
@Component({selector: 'app-root'})
@NgModule({})
`))
	assert.Contains(t, d.Detected(), Angular)
}
