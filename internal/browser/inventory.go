package browser

// inventoryJS collects the visible interactive elements of the page. The
// selector heuristic prefers ids, then names, then unique class pairs, then
// an nth-child path.
const inventoryJS = `() => {
	function validIdent(s) {
		if (!s) return false;
		if (/^-?[0-9]/.test(s)) return false;
		if (/[.:#\[\]()>~+*\/\\ ]/.test(s)) return false;
		return true;
	}

	function selectorOf(el) {
		if (el.id && validIdent(el.id)) return '#' + el.id;
		if (el.name) return el.tagName.toLowerCase() + '[name="' + el.name + '"]';
		const aria = el.getAttribute('aria-label');
		if (aria && !aria.includes('"')) {
			const sel = el.tagName.toLowerCase() + '[aria-label="' + aria + '"]';
			try {
				if (document.querySelectorAll(sel).length === 1) return sel;
			} catch (e) {}
		}
		if (el.className && typeof el.className === 'string') {
			const cls = el.className.trim().split(/\s+/).filter(validIdent).slice(0, 2);
			if (cls.length > 0) {
				const sel = el.tagName.toLowerCase() + '.' + cls.join('.');
				try {
					if (document.querySelectorAll(sel).length === 1) return sel;
				} catch (e) {}
			}
		}
		const parent = el.parentElement;
		if (parent && parent !== document.body) {
			const idx = Array.from(parent.children).indexOf(el) + 1;
			return selectorOf(parent) + ' > ' + el.tagName.toLowerCase() + ':nth-child(' + idx + ')';
		}
		return el.tagName.toLowerCase();
	}

	function visible(el) {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0 && getComputedStyle(el).visibility !== 'hidden';
	}

	function info(el) {
		return {
			tag: el.tagName.toLowerCase(),
			text: (el.innerText || el.value || '').trim().slice(0, 80),
			ariaLabel: el.getAttribute('aria-label') || '',
			role: el.getAttribute('role') || '',
			placeholder: el.getAttribute('placeholder') || '',
			type: el.getAttribute('type') || '',
			selector: selectorOf(el),
		};
	}

	function collect(query) {
		const out = [];
		document.querySelectorAll(query).forEach(el => {
			if (visible(el)) out.push(info(el));
		});
		return out.slice(0, 200);
	}

	return {
		buttons: collect('button, [role="button"], [role="tab"], [role="menuitem"], input[type="submit"]'),
		inputs: collect('input:not([type="hidden"]):not([type="submit"]), textarea, select, [role="combobox"]'),
		editables: collect('[contenteditable="true"], [contenteditable=""]'),
	};
}`
