// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cdp

import (
	"encoding/json"
	"fmt"
)

// liteWorldField is the field LiteWorkspace keeps its World in.
const liteWorldField = "org$nlogo$lite$LiteWorkspace$$world"

// chainPrelude resolves the applet chain and stops at the first missing hop.
// It defines `world`, `panel` and `respond` for the body that follows.
// NetLogoLite exposes the world only as a mangled Scala field; world() is
// tried when that field is absent.
const chainPrelude = `
const respond = (o) => JSON.stringify(o);
const el = document.getElementById(%s);
if (!el) return respond({missing: "applet"});
let panel, workspace, world;
try { panel = el.panel(); } catch (e) { return respond({missing: "panel", error: String(e)}); }
if (!panel) return respond({missing: "panel"});
try { workspace = panel.workspace(); } catch (e) { return respond({missing: "workspace", error: String(e)}); }
if (!workspace) return respond({missing: "workspace"});
try {
  world = workspace[%s];
  if (!world && typeof workspace.world === "function") world = workspace.world();
} catch (e) { return respond({missing: "world", error: String(e)}); }
if (!world) return respond({missing: "world"});
`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func wrap(elementID, body string) string {
	return "(() => {" + fmt.Sprintf(chainPrelude, jsString(elementID), jsString(liteWorldField)) + body + "})()"
}

func statusScript(elementID string) string {
	return wrap(elementID, `
try { if (!world.program()) return respond({missing: "program"}); } catch (e) { return respond({missing: "program", error: String(e)}); }
try { if (!world.observer()) return respond({missing: "observer"}); } catch (e) { return respond({missing: "observer", error: String(e)}); }
return respond({});`)
}

func globalsScript(elementID string) string {
	return wrap(elementID, `
try { return respond({value: String(world.program().globals())}); } catch (e) { return respond({missing: "globals", error: String(e)}); }`)
}

// variableScript converts applet lists into JS arrays so they survive JSON.
func variableScript(elementID string, index int) string {
	return wrap(elementID, fmt.Sprintf(`
const toJS = (v) => {
  if (v === null || v === undefined) return null;
  if (typeof v === "object" && typeof v.size === "function" && typeof v.get === "function") {
    const out = [];
    for (let i = 0; i < v.size(); i++) out.push(toJS(v.get(i)));
    return out;
  }
  if (typeof v === "object" && typeof v.toString === "function") return v.toString();
  return v;
};
try { return respond({value: toJS(world.observer().getVariable(%d))}); } catch (e) { return respond({error: String(e)}); }`, index))
}

func commandScript(elementID, cmd string) string {
	return wrap(elementID, fmt.Sprintf(`
try { panel.commandLater(%s); return respond({}); } catch (e) { return respond({error: String(e)}); }`, jsString(cmd)))
}
