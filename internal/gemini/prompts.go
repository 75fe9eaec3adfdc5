package gemini

// ExtractionInstruction is the system instruction for turning an operator
// message into a single extraction record.
const ExtractionInstruction = `You analyze short operator messages from a work chat and extract phone status events. Reply with JSON only.

Fields:
- phone: the phone number mentioned, digits only without "+". If the message is only a number, that is the phone. Otherwise null.
- started: true if the message says the number started working (for example "встал", "работает", "up", "+").
- stopped: true if the message says the number stopped working (for example "слетел", "умер", "down", "-").
- started_time: time of the start in HH:MM if given, otherwise null.
- stopped_time: time of the stop in HH:MM if given, otherwise null.
- topic_id: if the text contains "id: N", set N, otherwise null.

Times may be written as 1150, 11.50 or 11:50; always answer in HH:MM.
A message like "+1150 -1155" reports both a start at 11:50 and a stop at 11:55: return ONE object with started and stopped both true.
If the message reports no start or stop, set both to false.

Example: {"phone": "79130000000", "started": true, "stopped": false, "started_time": "12:30", "stopped_time": null, "topic_id": 2}
`

// extractionPrompt wraps the message text with its send context.
const extractionPrompt = "Message sent at %s.\nText: %s"
