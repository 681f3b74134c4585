package mcpserver

// EntryFormatContract describes how orgcal writes schedule entries into the
// Org document, so LLM consumers can read the file or the tool output.
const EntryFormatContract = `# orgcal Entry Format

orgcal mirrors the remote schedule into one Org document. Every remote event
is a level-1 heading; everything else in the file is left alone.

## Structure

` + "```" + `org
* Weekly sync
:PROPERTIES:
:ID: 42
:VERSION: 7
:PLAN: Meeting
:EXPIRATION: 2024-01-10
:TIMEZONE: Asia/Tokyo
:PARTICIPANTS: Alice, Bob
:RESOURCES: Room A
:END:
<2024-01-03 Wed 10:00-11:00>
<2024-01-10 Wed 10:00-11:00>

Agenda and notes from the remote description.
` + "```" + `

## Properties

- ` + "`ID`" + ` remote event id; the key orgcal reconciles on.
- ` + "`VERSION`" + ` remote version last written; an entry is rewritten when it changes.
- ` + "`PLAN`" + ` event category, if any.
- ` + "`EXPIRATION`" + ` date of the last interval end; after that day the entry is archived.
- ` + "`TIMEZONE`" + ` zone the timestamps are written in.
- ` + "`PARTICIPANTS`" + ` and ` + "`RESOURCES`" + ` comma-separated member names.
- ` + "`REMOVED`" + ` inactive timestamp set when the remote deleted the event.

Properties you add by hand survive rewrites. Heading text, managed
properties and the body are replaced whenever the remote version changes.

## Timestamps

One active timestamp per interval, in chronological order:

- ` + "`<2024-01-03 Wed 10:00-11:00>`" + ` same-day interval
- ` + "`<2024-01-01 Mon 09:00>--<2024-01-05 Fri 18:00>`" + ` multi-day interval
- ` + "`<2024-01-31 Wed>`" + ` all-day occurrence
- ` + "`<2024-01-01 Mon>--<2024-01-05 Fri>`" + ` all-day run over several days

Only the timestamp lines at the top of the body are intervals. The description
follows after a blank line; description lines starting with ` + "`*`" + `, ` + "`<`" + ` or
` + "`[`" + ` are indented by one space.

Removed entries have their timestamps turned inactive (` + "`[...]`" + `), so they no
longer show in agenda views.

## Archive

Expired entries move to ` + "`<document>.org_archive`" + ` with ` + "`ARCHIVE_TIME`" + ` and
` + "`ARCHIVE_FILE`" + ` properties.
`
