// Package agent defines the fixed set of Dexi agents.
//
// # Catalog
//
// The catalog holds guide, interview, transcript, labeling, trait, export and
// rationales. Select falls back to guide for an empty or unknown hint; Get reports
// ErrAgentNotFound instead.
//
// # Requests
//
// Prepare resolves the agent's prompt template, renders its input and merges
// model settings (template first, request overrides on top). The prompt cache key
// defaults to dexi:<application>:<agent>:v<template version> with a 24h retention.
package agent
