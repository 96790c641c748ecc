package server

// HTMLPage is the interop page. It sends the camera (or Chrome's fake
// device) to the server and shows two sides of the key-frame loop: the FIR
// counters Chrome reports for its outbound video and the feedback counters
// the server reports on /stats.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <title>RTCP Feedback Chrome Interop Test</title>
    <style>
        body { font-family: sans-serif; max-width: 720px; margin: 40px auto; }
        table { border-collapse: collapse; margin: 16px 0; }
        td, th { border: 1px solid #ccc; padding: 4px 12px; text-align: right; }
        th { text-align: left; }
        #video { width: 320px; background: #000; }
        .error { color: #b00020; }
    </style>
</head>
<body>
    <h1>RTCP Feedback Chrome Interop Test</h1>
    <p>The server asks for a key frame with FIR on every received video track.
       Chrome should count each request and answer with a new key frame.</p>

    <button id="startBtn" onclick="startCall()">Start Call</button>
    <button id="stopBtn" onclick="stopCall()" disabled>Stop Call</button>
    <p id="status">idle</p>

    <div id="fir">FIR received: 0, key frames sent: 0</div>
    <table>
        <tr><th>Browser (outbound-rtp)</th><th>Server (/stats)</th></tr>
        <tr><td>firCount <span id="firCount">0</span></td><td>datagrams <span id="datagramsSent">0</span></td></tr>
        <tr><td>pliCount <span id="pliCount">0</span></td><td>feedback packets <span id="packetsSent">0</span></td></tr>
        <tr><td>keyFramesEncoded <span id="keyFrames">0</span></td><td>sessions <span id="sessions">0</span></td></tr>
    </table>

    <video id="video" autoplay muted playsinline></video>

    <script>
        // var, so automation can reach it as window.pc.
        var pc = null;
        let stream = null;
        let timer = null;

        function show(id, value) {
            document.getElementById(id).textContent = value || 0;
        }

        function setStatus(text, isError) {
            const el = document.getElementById('status');
            el.textContent = text;
            el.className = isError ? 'error' : '';
        }

        async function refresh() {
            if (pc) {
                (await pc.getStats()).forEach(s => {
                    if (s.type !== 'outbound-rtp' || s.kind !== 'video') return;
                    show('firCount', s.firCount);
                    show('pliCount', s.pliCount);
                    show('keyFrames', s.keyFramesEncoded);
                    document.getElementById('fir').textContent =
                        'FIR received: ' + (s.firCount || 0) +
                        ', key frames sent: ' + (s.keyFramesEncoded || 0);
                });
            }
            const server = await (await fetch('/stats')).json();
            show('datagramsSent', server.datagramsSent);
            show('packetsSent', server.packetsSent);
            show('sessions', server.sessions);
        }

        function iceGathered() {
            return new Promise(resolve => {
                if (pc.iceGatheringState === 'complete') return resolve();
                pc.onicecandidate = e => { if (e.candidate === null) resolve(); };
            });
        }

        async function startCall() {
            document.getElementById('startBtn').disabled = true;
            document.getElementById('stopBtn').disabled = false;
            try {
                stream = await navigator.mediaDevices.getUserMedia({
                    video: { width: 640, height: 480, frameRate: 30 },
                    audio: false
                });
                document.getElementById('video').srcObject = stream;

                pc = new RTCPeerConnection({ iceServers: [] });
                stream.getTracks().forEach(t => pc.addTrack(t, stream));
                pc.onconnectionstatechange = () => setStatus(pc ? pc.connectionState : 'closed');

                await pc.setLocalDescription(await pc.createOffer());
                await iceGathered();

                const resp = await fetch('/offer', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify(pc.localDescription)
                });
                if (!resp.ok) throw new Error('offer rejected: ' + resp.status);
                await pc.setRemoteDescription(await resp.json());

                timer = setInterval(refresh, 1000);
            } catch (err) {
                setStatus(err.message, true);
                stopCall();
            }
        }

        function stopCall() {
            clearInterval(timer);
            timer = null;
            if (pc) pc.close();
            pc = null;
            if (stream) stream.getTracks().forEach(t => t.stop());
            stream = null;
            document.getElementById('video').srcObject = null;
            document.getElementById('startBtn').disabled = false;
            document.getElementById('stopBtn').disabled = true;
        }
    </script>
</body>
</html>`
