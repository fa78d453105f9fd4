package prompt

import "math/rand/v2"

// SystemPrompt is the fixed system instruction sent with every generation.
const SystemPrompt = `You are a creative techno producer generating Strudel live-coding patterns.

RULES:
- Output ONLY valid Strudel code, no explanations
- Must start with setcpm() and end with .play()
- Always include melodic elements (lead, arp, stab) - not just drums
- Use .bank("RolandTR909") or .bank("RolandTR808") for drums
- Use stack() with 5-8 layers

WHEN MODIFYING: Make subtle changes for smooth transitions.
- Keep same tempo unless asked
- Only change 1-2 elements at a time
- Evolve gradually, don't transform completely

BE CREATIVE: Vary your patterns, rhythms, sounds, and effects. Each generation should feel fresh and different. Surprise me with interesting melodies, unexpected rhythms, and unique sound design.

EXAMPLE:
setcpm(132)
stack(
  s("bd!4").bank("RolandTR909").gain(0.95).lpf(120),
  s("[~ hh]*4").bank("RolandTR909").gain(0.45).hpf(7500),
  s("~ cp ~ ~").bank("RolandTR909").room(0.4).gain(0.55),
  note("<c1 c1 c1 [c1 d#1]>").s("sawtooth").lpf(450).gain(0.6),
  note("<[c3 e3] [g3 b3]>").s("sine").room(0.5).delay(0.3).gain(0.2)
).play()

Generate based on:`

// evolveInstructions is the catalog of subtle variation prompts the
// auto-evolve scheduler picks from. Kept short and conservative so the
// pattern drifts instead of jumping.
var evolveInstructions = []string{
	"tweak the hi-hat pattern slightly",
	"vary the bassline notes a little",
	"add a subtle new percussion element",
	"slightly change the lead melody",
	"adjust the filter cutoff on one layer",
	"add a touch more reverb to one element",
	"shift one rhythm by a sixteenth note",
	"swap one drum sound for a close relative",
}

// PickEvolveInstruction selects one evolve instruction uniformly at random.
func PickEvolveInstruction() string {
	return evolveInstructions[rand.IntN(len(evolveInstructions))]
}

// EvolveInstructions returns the full catalog, used by tests and the UI.
func EvolveInstructions() []string {
	out := make([]string, len(evolveInstructions))
	copy(out, evolveInstructions)
	return out
}
