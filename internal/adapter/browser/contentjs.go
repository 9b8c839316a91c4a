package browser

import (
	"fmt"

	"webpilot/internal/domain"
)

// findElementJS builds a JS expression that resolves a selector to its first
// match, or null. XPath candidates go through document.evaluate so the two
// selector languages can share one candidate list.
func findElementJS(sel domain.Selector) string {
	if sel.Kind == domain.SelectorXPath {
		return fmt.Sprintf(
			`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
			sel.Expr)
	}
	return fmt.Sprintf(`document.querySelector(%q)`, sel.Expr)
}

// findAllJS builds a JS statement that fills a local `els` array with every
// match for the selector.
func findAllJS(sel domain.Selector) string {
	if sel.Kind == domain.SelectorXPath {
		return fmt.Sprintf(`var els = [];
		var snap = document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (var i = 0; i < snap.snapshotLength; i++) els.push(snap.snapshotItem(i));`, sel.Expr)
	}
	return fmt.Sprintf(`var els = Array.prototype.slice.call(document.querySelectorAll(%q));`, sel.Expr)
}

// probeJS reports match count, visibility, and interactability as JSON.
// Visibility requires a non-zero rendered box and no display suppression.
func probeJS(sel domain.Selector) string {
	return fmt.Sprintf(`(function() {
	%s
	var visible = false, enabled = false;
	for (var i = 0; i < els.length; i++) {
		var el = els[i];
		var r = el.getBoundingClientRect();
		var st = window.getComputedStyle(el);
		if (r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none') {
			visible = true;
			enabled = !el.disabled;
			break;
		}
	}
	return JSON.stringify({count: els.length, visible: visible, enabled: enabled});
})()`, findAllJS(sel))
}

// setValueJS assigns text through the native value setter (so framework
// change trackers observe it) and dispatches input/change events.
// Contenteditable surfaces get textContent instead.
func setValueJS(sel domain.Selector, text string) string {
	return fmt.Sprintf(`(function() {
	var el = %s;
	if (!el) return 'missing';
	el.focus();
	if (el.isContentEditable) {
		el.textContent = %q;
	} else {
		var proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		var desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) { desc.set.call(el, %q); } else { el.value = %q; }
	}
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return 'ok';
})()`, findElementJS(sel), text, text, text)
}

// clickJS invokes the element's click() method.
func clickJS(sel domain.Selector) string {
	return fmt.Sprintf(`(function() {
	var el = %s;
	if (!el) return 'missing';
	el.click();
	return 'ok';
})()`, findElementJS(sel))
}

// mouseEventsJS replays a mousedown/mouseup/click sequence for handlers
// that ignore synthetic click() calls.
func mouseEventsJS(sel domain.Selector) string {
	return fmt.Sprintf(`(function() {
	var el = %s;
	if (!el) return 'missing';
	var r = el.getBoundingClientRect();
	var opts = {bubbles: true, cancelable: true, view: window,
		clientX: r.left + r.width / 2, clientY: r.top + r.height / 2};
	el.dispatchEvent(new MouseEvent('mousedown', opts));
	el.dispatchEvent(new MouseEvent('mouseup', opts));
	el.dispatchEvent(new MouseEvent('click', opts));
	return 'ok';
})()`, findElementJS(sel))
}

// valueJS reads the element's current value (or text, for contenteditable).
func valueJS(sel domain.Selector) string {
	return fmt.Sprintf(`(function() {
	var el = %s;
	if (!el) return '';
	if (el.value !== undefined && el.value !== null && el.value !== '') return String(el.value);
	return el.textContent || '';
})()`, findElementJS(sel))
}

// submitFormJS submits the form enclosing the element. requestSubmit fires
// submit handlers and validation; plain submit() is the fallback.
func submitFormJS(sel domain.Selector) string {
	return fmt.Sprintf(`(function() {
	var el = %s;
	if (!el) return 'missing';
	var form = el.form || el.closest('form');
	if (!form) return 'noform';
	if (form.requestSubmit) { form.requestSubmit(); } else { form.submit(); }
	return 'ok';
})()`, findElementJS(sel))
}

// snapshotJS extracts the page view for the decision model: address, title,
// trimmed visible text, and a bounded list of interactable elements each
// with a best-effort unique selector.
const snapshotJS = `(function() {
	function cssPath(el) {
		if (el.id) return '#' + el.id;
		var name = el.getAttribute('name');
		if (name) return el.tagName.toLowerCase() + "[name='" + name + "']";
		var label = el.getAttribute('aria-label');
		if (label) return el.tagName.toLowerCase() + "[aria-label='" + label.replace(/'/g, "\\'") + "']";
		var path = [];
		var node = el;
		while (node && node.nodeType === 1 && path.length < 4) {
			var seg = node.tagName.toLowerCase();
			var parent = node.parentElement;
			if (parent) {
				var same = Array.prototype.filter.call(parent.children, function(c) {
					return c.tagName === node.tagName;
				});
				if (same.length > 1) seg += ':nth-of-type(' + (same.indexOf(node) + 1) + ')';
			}
			path.unshift(seg);
			node = parent;
		}
		return path.join(' > ');
	}
	function kindOf(el) {
		var tag = el.tagName.toLowerCase();
		if (tag === 'a') return 'link';
		if (tag === 'button' || el.getAttribute('role') === 'button') return 'button';
		if (tag === 'input' || tag === 'textarea' || tag === 'select') return 'input';
		if (el.isContentEditable) return 'editable';
		return '';
	}
	var interactables = document.querySelectorAll(
		"a[href], button, input, textarea, select, [role='button'], [contenteditable='true']");
	var elements = [];
	for (var i = 0; i < interactables.length && elements.length < 40; i++) {
		var el = interactables[i];
		var r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		var text = (el.innerText || el.value || el.getAttribute('placeholder') ||
			el.getAttribute('aria-label') || '').trim().slice(0, 80);
		elements.push({tag: el.tagName.toLowerCase(), text: text,
			selector: cssPath(el), kind: kindOf(el)});
	}
	var visibleText = (document.body ? document.body.innerText : '').trim().slice(0, 4000);
	return JSON.stringify({url: location.href, title: document.title,
		visible_text: visibleText, elements: elements});
})()`
