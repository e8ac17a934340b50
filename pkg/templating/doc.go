/*
Package templating loads placeholder templates from the filesystem and renders
them with the markup package.

A template is plain HTML with three kinds of placeholder and no control flow:

	{{title}}           data value, escaped according to its type
	{{raw body}}        data value emitted verbatim
	{{fragment nav}}    named fragment, loaded as a deferred value

Files ending in the configured extension (".tmpl.html" by default) are loaded
from the "templates" directory under the data directory and can be reloaded at
runtime with Refresh.
*/
package templating
