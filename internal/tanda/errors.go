package tanda

import "github.com/rotisserie/eris"

var errNoClient = eris.New("tanda: no remote client configured")
