package admit

import (
	"strconv"

	"github.com/dgnsrekt/meetcloser/internal/cdpcontrol"
)

const admitMarker = "data-meetcloser-admit"

// scanScript reports who is already in the call and who is waiting. It
// clicks the "Admit N guest" banner when present so the waiting list
// renders, and tags each per-person Admit button with an index that
// admitScript can click later.
const scanScript = `
const lower = (s) => String(s || '').toLowerCase();
const present = [];
document.querySelectorAll('[data-self-name]').forEach((el) => {
  present.push(el.getAttribute('data-self-name') || el.textContent || '');
});
document.querySelectorAll('[role="listitem"], [data-participant-id]').forEach((el) => {
  const list = lower(el.closest('[role="list"]') && el.closest('[role="list"]').textContent);
  if (!list.includes('waiting') && !list.includes('admit')) {
    present.push(el.textContent || '');
  }
});

let revealed = false;
for (const btn of document.querySelectorAll('button')) {
  const text = lower(btn.textContent);
  const aria = lower(btn.getAttribute('aria-label'));
  if ((text.includes('admit') && text.includes('guest')) || (aria.includes('admit') && aria.includes('guest'))) {
    btn.click();
    revealed = true;
    break;
  }
}

if (!revealed) {
  const body = lower(document.body && document.body.innerText);
  const waitingText = ['wants to join', 'waiting to join', 'asking to join', 'wants to be admitted'];
  if (waitingText.some((t) => body.includes(t))) {
    const panel = document.querySelector('[data-panel-id="2"]');
    if (!panel || panel.offsetParent === null) {
      const opener = document.querySelector('button[aria-label*="articipant"]') ||
        document.querySelector('button[aria-label*="people"]') ||
        Array.from(document.querySelectorAll('button')).find((b) => {
          const tip = lower(b.getAttribute('data-tooltip'));
          return tip.includes('participant') || tip.includes('people');
        });
      if (opener) opener.click();
    }
  }
}

const nameNear = (container) => {
  const tagged = container.querySelector('[data-self-name]') || container.querySelector('[data-participant-id]');
  if (tagged) return tagged.textContent || '';
  for (const el of container.querySelectorAll('span, div')) {
    const text = (el.textContent || '').trim();
    const l = text.toLowerCase();
    if (text.length > 2 && text.length < 100 && !l.includes('admit') && !l.includes('deny')) return text;
  }
  return (container.textContent || '').split('Admit')[0].trim();
};

const waiting = [];
let index = 0;
document.querySelectorAll('button').forEach((btn) => {
  const text = lower(btn.textContent);
  if (!text.includes('admit') || text.includes('admit all') || text.includes('guest')) return;
  const container = btn.closest('[data-participant-id]') || btn.closest('[role="listitem"]') ||
    (btn.parentElement && btn.parentElement.parentElement && btn.parentElement.parentElement.parentElement);
  if (!container) return;
  const name = nameNear(container).trim();
  if (!name) return;
  btn.setAttribute('` + admitMarker + `', String(index));
  waiting.push({ index, name });
  index++;
});

return JSON.stringify({ ok: true, data: { present, waiting, revealed } });
`

// admitScript clicks the Admit button scanScript tagged with index.
func admitScript(index int) string {
	return `
const btn = document.querySelector('[` + admitMarker + `="' + ` + cdpcontrol.JSString(strconv.Itoa(index)) + ` + '"]');
if (!btn) {
  return JSON.stringify({ ok: true, data: { clicked: false } });
}
btn.click();
return JSON.stringify({ ok: true, data: { clicked: true } });
`
}

type waitingEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type pageScan struct {
	Present  []string       `json:"present"`
	Waiting  []waitingEntry `json:"waiting"`
	Revealed bool           `json:"revealed"`
}

type clickResult struct {
	Clicked bool `json:"clicked"`
}
