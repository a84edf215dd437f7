// Package frameworks fingerprints the libraries an analyzed codebase is
// built on. The detection order ranks frameworks by signal strength and
// feeds rule applicability: framework-specific rules only fire for
// frameworks detected here.
package frameworks

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Framework names as they appear in rule metadata.
const (
	Express = "express"
	NestJS  = "nestjs"
	Koa     = "koa"
	Fastify = "fastify"
	React   = "react"
	Angular = "angular"
	Vue     = "vue"
	Next    = "next"
	JQuery  = "jquery"
)

// signal is one textual fingerprint contributing weight to a framework.
type signal struct {
	needle string
	weight int
}

var fingerprints = map[string][]signal{
	Express: {
		{`require('express')`, 5}, {`require("express")`, 5},
		{`from 'express'`, 5}, {`from "express"`, 5},
		{`express()`, 3}, {`app.use(`, 1}, {`res.send(`, 1},
	},
	NestJS: {
		{`@nestjs/`, 5}, {`@Controller(`, 4}, {`@Injectable(`, 3},
		{`@Module(`, 2}, {`@Query(`, 1}, {`@Body(`, 1},
	},
	Koa: {
		{`require('koa')`, 5}, {`require("koa")`, 5},
		{`from 'koa'`, 5}, {`ctx.request.body`, 2},
	},
	Fastify: {
		{`require('fastify')`, 5}, {`require("fastify")`, 5},
		{`from 'fastify'`, 5}, {`fastify.register(`, 2},
	},
	React: {
		{`from 'react'`, 5}, {`from "react"`, 5},
		{`require('react')`, 5}, {`React.createElement`, 3},
		{`useState(`, 2}, {`useEffect(`, 2}, {`dangerouslySetInnerHTML`, 2},
	},
	Angular: {
		{`@angular/`, 5}, {`@Component(`, 3}, {`@NgModule(`, 3},
	},
	Vue: {
		{`from 'vue'`, 5}, {`from "vue"`, 5},
		{`new Vue(`, 4}, {`createApp(`, 2}, {`v-html`, 2},
	},
	Next: {
		{`from 'next'`, 4}, {`from 'next/`, 4}, {`getServerSideProps`, 3},
	},
	JQuery: {
		{`require('jquery')`, 5}, {`$(document).ready`, 4},
		{`$.ajax(`, 3}, {`jQuery(`, 3},
	},
}

// dependencyNames maps package.json dependency keys to framework names.
var dependencyNames = map[string]string{
	"express":       Express,
	"@nestjs/core":  NestJS,
	"koa":           Koa,
	"fastify":       Fastify,
	"react":         React,
	"@angular/core": Angular,
	"vue":           Vue,
	"next":          Next,
	"jquery":        JQuery,
}

// Detector accumulates fingerprint evidence across the files of one scan.
type Detector struct {
	logger *zap.Logger
	scores map[string]int
}

func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		logger: logger.Named("framework_detector"),
		scores: make(map[string]int),
	}
}

// ScanSource accumulates evidence from one source file's content.
func (d *Detector) ScanSource(content []byte) {
	text := string(content)
	for fw, sigs := range fingerprints {
		for _, s := range sigs {
			if n := strings.Count(text, s.needle); n > 0 {
				d.scores[fw] += s.weight * n
			}
		}
	}
}

// ScanManifest accumulates evidence from a package.json body. Dependency
// declarations are the strongest signal available, so they dominate
// content fingerprints.
func (d *Detector) ScanManifest(content []byte) {
	text := string(content)
	for dep, fw := range dependencyNames {
		if strings.Contains(text, `"`+dep+`"`) {
			d.scores[fw] += 50
		}
	}
}

// Detected returns the frameworks seen so far, strongest evidence first.
// The order is total: ties break alphabetically.
func (d *Detector) Detected() []string {
	names := make([]string, 0, len(d.scores))
	for fw, score := range d.scores {
		if score >= 3 {
			names = append(names, fw)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if d.scores[names[i]] != d.scores[names[j]] {
			return d.scores[names[i]] > d.scores[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 0 {
		d.logger.Debug("Frameworks detected", zap.Strings("frameworks", names))
	}
	return names
}
