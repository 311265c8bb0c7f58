package google

// registryJS gives elements stable ids so Go can hold references to them
// across evaluations. It runs on every new document and once on the
// current one. Elements are held weakly: an id outlives its element only
// until the collector runs or the next lookup finds it detached.
const registryJS = `() => {
	if (window.__hires) return;
	const byId = new Map();
	const ids = new WeakMap();
	const gone = new FinalizationRegistry((id) => byId.delete(id));
	let next = 0;
	window.__hires = {
		ref(el) {
			if (!el) return '';
			let id = ids.get(el);
			if (!id) {
				id = 'h' + (++next);
				ids.set(el, id);
				byId.set(id, new WeakRef(el));
				gone.register(el, id);
			}
			return id;
		},
		get(id) {
			const held = byId.get(id);
			const el = held && held.deref();
			if (!el || !el.isConnected) {
				byId.delete(id);
				return null;
			}
			return el;
		},
		up(el, levels) {
			for (let i = 0; i < levels && el.parentElement; i++) el = el.parentElement;
			return el;
		},
	};
}`

// captureJS reports the right-clicked image through the capture binding.
const captureJS = `() => {
	if (window.__hiresCapture) return;
	window.__hiresCapture = true;
	document.addEventListener('contextmenu', (e) => {
		const t = e.target;
		if (!(t instanceof Element) || typeof window.` + captureBinding + ` !== 'function') return;
		const el = t.tagName === 'IMG' ? t : (t.querySelector('img') || t);
		window.` + captureBinding + `(JSON.stringify({
			ref: window.__hires.ref(el),
			src: el.currentSrc || el.src || el.getAttribute('data-src') || '',
		}));
	}, true);
}`

const outerHTMLJS = `(id, levels) => {
	const el = window.__hires.get(id);
	if (!el) return null;
	return window.__hires.up(el, levels).outerHTML;
}`

const visibleImagesJS = `(minArea) => Array.from(document.images).filter((img) => {
	if (!img.isConnected || !img.complete) return false;
	if (img.naturalWidth * img.naturalHeight < minArea) return false;
	const r = img.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return false;
	const cs = getComputedStyle(img);
	return cs.display !== 'none' && cs.visibility !== 'hidden';
}).map((img) => ({
	src: img.currentSrc || img.src,
	width: img.naturalWidth,
	height: img.naturalHeight,
}))`

const findByImageSrcJS = `(src) => {
	for (const img of document.images) {
		if (img.src === src || img.currentSrc === src || img.getAttribute('src') === src) {
			return window.__hires.ref(img);
		}
	}
	return '';
}`

const observeJS = `(id, levels, name) => {
	const el = window.__hires.get(id);
	if (!el) return false;
	const root = window.__hires.up(el, levels);
	const obs = new MutationObserver(() => {
		if (typeof window[name] === 'function') window[name](root.isConnected ? root.outerHTML : '');
	});
	obs.observe(root, { subtree: true, childList: true, attributes: true, characterData: true });
	window[name + '_obs'] = obs;
	return true;
}`

const unobserveJS = `(name) => {
	const obs = window[name + '_obs'];
	if (obs) obs.disconnect();
	delete window[name + '_obs'];
}`

const injectStyleJS = `(id, css) => {
	let s = document.getElementById(id);
	if (!s) {
		s = document.createElement('style');
		s.id = id;
		(document.head || document.documentElement).appendChild(s);
	}
	s.textContent = css;
}`

const removeStyleJS = `(id) => {
	const s = document.getElementById(id);
	if (s) s.remove();
}`

const boundsJS = `(id) => {
	const el = window.__hires.get(id);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return { x: r.x, y: r.y, width: r.width, height: r.height };
}`

const ancestorJS = `(id, sel) => {
	const el = window.__hires.get(id);
	if (!el) return null;
	const a = el.parentElement ? el.parentElement.closest(sel) : null;
	return a ? window.__hires.ref(a) : '';
}`

const dispatchJS = `(id, type, x, y) => {
	const el = window.__hires.get(id);
	if (!el) return false;
	const down = type.endsWith('down');
	const init = {
		bubbles: true, cancelable: true, composed: true, view: window,
		clientX: x, clientY: y, button: 0, buttons: down ? 1 : 0,
	};
	const ev = type.startsWith('pointer')
		? new PointerEvent(type, Object.assign({ pointerId: 1, pointerType: 'mouse', isPrimary: true }, init))
		: new MouseEvent(type, init);
	el.dispatchEvent(ev);
	return true;
}`

const clickFirstJS = `(sels) => {
	for (const s of sels) {
		let el = null;
		try { el = document.querySelector(s); } catch (e) { continue; }
		if (el) {
			el.click();
			return s;
		}
	}
	return '';
}`

const thumbnailsJS = `(sel) => Array.from(document.querySelectorAll(sel)).map((el) => ({
	ref: window.__hires.ref(el),
	src: el.currentSrc || el.src || el.getAttribute('data-src') || '',
})).filter((t) => t.src !== '')`

const countJS = `(sel) => document.querySelectorAll(sel).length`

const scrollJS = `() => window.scrollBy(0, window.innerHeight * 2)`
