// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony_twilio

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// TwiML builders for the voice webhook surface. Values are caller-influenced
// (caller id display names in particular) and are always XML-escaped.

// StreamTwiML answers an inbound call by connecting its audio to the media
// stream websocket. The custom parameters reappear verbatim in the stream's
// start message, which is how caller identity and tenant reach the bridge.
func StreamTwiML(wsURL string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<Response><Connect><Stream url=\"")
	b.WriteString(escape(wsURL))
	b.WriteString("\">")
	for _, name := range sortedKeys(params) {
		fmt.Fprintf(&b, `<Parameter name="%s" value="%s" />`, escape(name), escape(params[name]))
	}
	b.WriteString("</Stream></Connect></Response>")
	return b.String()
}

// TransferTwiML redirects a live call to a human by dialing out.
func TransferTwiML(number string) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<Response><Dial>")
	b.WriteString(escape(number))
	b.WriteString("</Dial></Response>")
	return b.String()
}

// HangupTwiML says a closing line and ends the call.
func HangupTwiML(message string) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<Response>")
	if message != "" {
		b.WriteString("<Say>")
		b.WriteString(escape(message))
		b.WriteString("</Say>")
	}
	b.WriteString("<Hangup /></Response>")
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Insertion sort keeps TwiML output deterministic for small maps.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
