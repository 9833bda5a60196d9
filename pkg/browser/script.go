package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// successText is the notification shown once the archive download finished.
const successText = "Ihre Dateien sind erfolgreich heruntergeladen worden"

// mutationBinding is the runtime binding the observer script calls.
const mutationBinding = "mjpExportMutation"

// observerScript reports DOM mutations through the binding, coalesced per frame.
const observerScript = `(() => {
	if (window.__mjpExportObserver || !document.body) return;
	let pending = false;
	window.__mjpExportObserver = new MutationObserver(() => {
		if (pending || typeof window.` + mutationBinding + ` !== 'function') return;
		pending = true;
		requestAnimationFrame(() => { pending = false; window.` + mutationBinding + `('m'); });
	});
	window.__mjpExportObserver.observe(document.body, {childList: true, subtree: true, attributes: true, attributeFilter: ['disabled', 'class']});
})()`

// observerDetachScript disconnects the observer installed by observerScript.
const observerDetachScript = `(() => {
	if (window.__mjpExportObserver) window.__mjpExportObserver.disconnect();
	delete window.__mjpExportObserver;
})()`

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// cssString quotes s for use inside a double-quoted CSS attribute selector.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func scopeSelector(id string) string {
	return "[data-uuid=" + cssString(id) + "]"
}

func saveAllSelector(id string) string {
	return scopeSelector(id) + " .btn.save-all-action:not([disabled])"
}

func proofSelector(id, label string) string {
	return scopeSelector(id) + " ozg-popupwindow[data-pagetitle=" + cssString(label) + "]"
}

func existsExpr(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
}

// clickExpr dispatches pointer-down, pointer-up and click; it evaluates to
// false when the element is missing.
func clickExpr(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	['mousedown', 'mouseup', 'click'].forEach(type =>
		el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window})));
	return true;
})()`, jsString(selector))
}

func completionExpr() string {
	text := jsString(successText)
	return fmt.Sprintf(`(() => {
	if (document.querySelector('ozg-alert[data-message*=' + JSON.stringify(%s) + ']')) return true;
	return Array.from(document.querySelectorAll('.alert-message span')).some(el => (el.innerText || '').includes(%s));
})()`, text, text)
}

// recordInfoExpr reads the bound message record of the detail component.
func recordInfoExpr(id string) string {
	return fmt.Sprintf(`(() => {
	try {
		const comp = document.querySelector(%s);
		if (!comp || !comp.messageData || typeof comp.getTransmitter !== 'function') return {ok: false};
		return {ok: true, creationTime: String(comp.messageData.ozgppCreationTime || ''), transmitter: String(comp.getTransmitter() || '')};
	} catch (e) {
		return {ok: false};
	}
})()`, jsString(scopeSelector(id)))
}

const windowReadyExpr = `!!document.querySelector('h1') && !!document.body && document.body.innerHTML.length > 100`

const documentHTMLExpr = `document.documentElement.outerHTML`

const locationExpr = `window.location.hash`

func navigateExpr(location string) string {
	return fmt.Sprintf(`window.location.hash = %s`, jsString(location))
}
