// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the conversation data model for pagemark.
//
// A Conversation is an ordered, bounded sequence of Messages attached to one
// document (ConversationKey). Messages carry role, text, timestamps, and
// optional reasoning traces. Assistant messages under construction are
// "streaming": their content grows append-only through delta methods until
// finalized exactly once as completed, cancelled, or errored.
package model
